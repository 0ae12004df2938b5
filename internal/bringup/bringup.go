// Package bringup sequences the two-phase start of the panel: configure the
// controller over the 9-bit serial interface, then stream pixels over the
// parallel RGB interface, with the reset line turned into VSYNC in between.
package bringup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/conn/v3/spi"

	appLog "rgblcd/internal/log"
	"rgblcd/internal/pinmux"
	"rgblcd/internal/regprog"
	"rgblcd/internal/rgb"
	"rgblcd/internal/spi9"
)

// Board is the hardware the sequence drives.
type Board struct {
	Backlight gpio.PinOut
	// BacklightOn is the level that lights the panel.
	BacklightOn gpio.Level
	// Reset doubles as VSYNC once the register program has run.
	Reset gpio.PinOut
	// HSync, when set, is routed to Options.HSyncFunc before the parallel
	// interface opens. Left nil the interface claims the line by name.
	HSync    pin.Pin
	SPI      spi.PortCloser
	Engine   rgb.Engine
	Registry *pinmux.Registry
}

// Options are the software side of the sequence.
type Options struct {
	Serial  spi9.Opts
	Program *regprog.Program
	Panel   rgb.Config
	// SyncFunc and HSyncFunc are the pin functions of VSYNC and HSYNC.
	// Empty leaves routing to the display controller.
	SyncFunc  pin.Func
	HSyncFunc pin.Func
	Clock     clockwork.Clock
}

// Step is one stage of the sequence as it ran.
type Step struct {
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Report describes a finished (or failed) bring-up.
type Report struct {
	Steps         []Step `json:"steps"`
	Transactions  int    `json:"transactions"`
	Program       string `json:"program"`
	ProgramDigest string `json:"program_digest"`
	Timing        string `json:"timing"`
	OK            bool   `json:"ok"`
}

// Result is a panel ready for drawing.
type Result struct {
	Panel  *rgb.Panel
	Report Report
}

// Step names, in order.
const (
	StepBacklightOff = "backlight-off"
	StepReset        = "reset"
	StepSerialOpen   = "serial-open"
	StepProgram      = "program"
	StepSerialClose  = "serial-close"
	StepHandoff      = "handoff"
	StepPanelOpen    = "panel-open"
	StepPanelReset   = "panel-reset"
	StepPanelInit    = "panel-init"
	StepBacklightOn  = "backlight-on"
)

type runner struct {
	ctx    context.Context
	clock  clockwork.Clock
	report *Report
}

func (r *runner) do(name string, fn func() error) error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("bringup: %s: %w", name, err)
	}
	start := r.clock.Now()
	err := fn()
	st := Step{Name: name, Start: start, Duration: r.clock.Since(start)}
	if err != nil {
		st.Err = err.Error()
		r.report.Steps = append(r.report.Steps, st)
		appLog.Error("bring-up step failed", err, "step", name, "took", st.Duration)
		return fmt.Errorf("bringup: %s: %w", name, err)
	}
	r.report.Steps = append(r.report.Steps, st)
	appLog.Debug("bring-up step done", "step", name, "took", st.Duration)
	return nil
}

// Run brings the panel up. On any error the sequence stops where it is, the
// backlight stays off and the error names the failed step. The returned
// Report is filled either way.
//
// Waits inside a step are not interrupted by ctx; it is checked between
// steps.
func Run(ctx context.Context, b *Board, opts Options) (*Result, error) {
	res := &Result{}
	if b == nil || b.Backlight == nil || b.Reset == nil || b.SPI == nil || b.Engine == nil {
		return res, errors.New("bringup: incomplete board")
	}
	if opts.Program == nil {
		return res, errors.New("bringup: no register program")
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	reg := b.Registry
	if reg == nil {
		reg = pinmux.NewRegistry()
	}

	res.Report = Report{
		Program:       opts.Program.Name,
		ProgramDigest: opts.Program.Digest(),
		Timing:        opts.Panel.Timing.String(),
	}
	r := &runner{ctx: ctx, clock: clock, report: &res.Report}

	appLog.Info("bring-up starting",
		"program", opts.Program.Name,
		"version", opts.Program.Version,
		"digest", res.Report.ProgramDigest,
		"transactions", opts.Program.Transactions(),
		"timing", res.Report.Timing,
	)

	var (
		backlight *pinmux.Output
		reset     *pinmux.Output
		tr        *spi9.Transport
		vsync     *pinmux.SyncPin
		hsync     *pinmux.SyncPin
		panel     *rgb.Panel
	)
	off := !b.BacklightOn

	fail := func(err error) (*Result, error) {
		if tr != nil {
			_ = tr.Close()
		}
		if panel != nil {
			_ = panel.Close()
		} else if hsync != nil {
			reg.ReleaseSync(hsync.Name())
		}
		if backlight != nil {
			if berr := backlight.Set(off); berr != nil {
				appLog.Error("backlight off after failure", berr)
			}
		}
		return res, err
	}

	err := r.do(StepBacklightOff, func() error {
		var err error
		if backlight, err = reg.Output(b.Backlight); err != nil {
			return err
		}
		return backlight.Set(off)
	})
	if err != nil {
		return fail(err)
	}

	err = r.do(StepReset, func() error {
		var err error
		if reset, err = reg.ResetOutput(b.Reset); err != nil {
			return err
		}
		return reset.ResetPulse(clock)
	})
	if err != nil {
		return fail(err)
	}

	err = r.do(StepSerialOpen, func() error {
		var err error
		if tr, err = spi9.Open(b.SPI, &opts.Serial, reg); err != nil {
			return err
		}
		appLog.Debug("serial bus claimed", "pins", tr.Pins(), "max_transfer", tr.MaxTransfer())
		return nil
	})
	if err != nil {
		return fail(err)
	}

	err = r.do(StepProgram, func() error {
		return opts.Program.Run(tr, clock)
	})
	res.Report.Transactions = tr.Count()
	if err != nil {
		return fail(err)
	}

	err = r.do(StepSerialClose, func() error {
		t := tr
		tr = nil
		return t.Close()
	})
	if err != nil {
		return fail(err)
	}

	err = r.do(StepHandoff, func() error {
		var err error
		if vsync, err = reset.Handoff(opts.SyncFunc); err != nil {
			return err
		}
		appLog.Debug("reset line handed off", "pin", vsync.Name(), "func", vsync.Func())
		if b.HSync != nil {
			hsync, err = reg.ClaimSync(b.HSync, opts.HSyncFunc)
		}
		return err
	})
	if err != nil {
		return fail(err)
	}

	err = r.do(StepPanelOpen, func() error {
		var err error
		panel, err = rgb.Open(opts.Panel, b.Engine, reg, vsync, hsync)
		return err
	})
	if err != nil {
		return fail(err)
	}

	if err := r.do(StepPanelReset, panel.Reset); err != nil {
		return fail(err)
	}
	if err := r.do(StepPanelInit, panel.Init); err != nil {
		return fail(err)
	}

	err = r.do(StepBacklightOn, func() error {
		return backlight.Set(b.BacklightOn)
	})
	if err != nil {
		return fail(err)
	}

	res.Panel = panel
	res.Report.OK = true
	appLog.Info("bring-up complete",
		"transactions", res.Report.Transactions,
		"refresh", opts.Panel.Timing.RefreshRate(),
		"pins", reg.Names(),
		"took", clock.Since(res.Report.Steps[0].Start),
	)
	return res, nil
}
