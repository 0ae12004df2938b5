// Package board resolves the configured pins, bus and display controller,
// either on real hardware through periph.io or as an in-memory simulation.
package board

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"rgblcd/internal/bringup"
	"rgblcd/internal/config"
	appLog "rgblcd/internal/log"
	"rgblcd/internal/pinmux"
	"rgblcd/internal/regprog"
	"rgblcd/internal/rgb"
	"rgblcd/internal/spi9"
)

// Setup is everything bring-up needs, built from the config.
type Setup struct {
	Board     *bringup.Board
	Serial    spi9.Opts
	Panel     rgb.Config
	Program   *regprog.Program
	SyncFunc  pin.Func
	HSyncFunc pin.Func
	Sim       bool
}

// Options returns the bring-up options for this setup.
func (s *Setup) Options(clock clockwork.Clock) bringup.Options {
	return bringup.Options{
		Serial:    s.Serial,
		Program:   s.Program,
		Panel:     s.Panel,
		SyncFunc:  s.SyncFunc,
		HSyncFunc: s.HSyncFunc,
		Clock:     clock,
	}
}

// Open builds the setup. With sim set no hardware is touched.
func Open(cfg *config.Config, sim bool) (*Setup, error) {
	serial, err := cfg.SerialOpts()
	if err != nil {
		return nil, err
	}
	panel, err := cfg.PanelConfig()
	if err != nil {
		return nil, err
	}
	prog, err := loadProgram(cfg.Program.Path)
	if err != nil {
		return nil, err
	}

	s := &Setup{
		Serial:    serial,
		Panel:     panel,
		Program:   prog,
		SyncFunc:  pin.Func(cfg.RGB.SyncFunc),
		HSyncFunc: pin.Func(cfg.RGB.HSyncFunc),
		Sim:       sim,
	}
	onLevel := gpio.High
	if cfg.Pins.BacklightActiveLow {
		onLevel = gpio.Low
	}

	if sim {
		s.Board, s.Serial.CS = simBoard(cfg)
		// Simulated pins have no alternate functions to switch to.
		s.SyncFunc, s.HSyncFunc = "", ""
	} else {
		s.Board, s.Serial.CS, err = hostBoard(cfg)
		if err != nil {
			return nil, err
		}
	}
	s.Board.BacklightOn = onLevel
	s.Board.Registry = pinmux.NewRegistry()
	return s, nil
}

func loadProgram(path string) (*regprog.Program, error) {
	if path == "" {
		return regprog.Default()
	}
	appLog.Info("loading register program", "path", path)
	return regprog.Load(path)
}

func hostBoard(cfg *config.Config) (*bringup.Board, gpio.PinOut, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("board: periph host init failed: %w", err)
	}

	byName := func(name string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("board: gpio %s not found", name)
		}
		return p, nil
	}

	bl, err := byName(cfg.Pins.Backlight)
	if err != nil {
		return nil, nil, err
	}
	rst, err := byName(cfg.Pins.Reset)
	if err != nil {
		return nil, nil, err
	}
	hs, err := byName(cfg.RGB.Pins.HSync)
	if err != nil {
		return nil, nil, err
	}
	var cs gpio.PinOut
	if cfg.Serial.CS != "" {
		p, err := byName(cfg.Serial.CS)
		if err != nil {
			return nil, nil, err
		}
		cs = p
	}

	port, err := spireg.Open(cfg.Serial.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("board: failed to open SPI port %q: %w", cfg.Serial.Bus, err)
	}

	appLog.Info("hardware board ready",
		"spi", port.String(),
		"backlight", bl.Name(),
		"reset", rst.Name(),
		"hsync", hs.Name(),
		"fb", cfg.RGB.Device,
	)
	return &bringup.Board{
		Backlight: bl,
		Reset:     rst,
		HSync:     hs,
		SPI:       port,
		Engine:    rgb.NewFBDev(cfg.RGB.Device),
	}, cs, nil
}
