package main

import (
	"fmt"
	"image"
	"sync"

	"github.com/robfig/cron/v3"

	"rgblcd/internal/bringup"
	"rgblcd/internal/convert"
	appLog "rgblcd/internal/log"
	"rgblcd/internal/pattern"
	"rgblcd/internal/pinmux"
	"rgblcd/internal/rgb"
	"rgblcd/internal/web"
)

// app is the running panel. It is the web.Source for the status API.
type app struct {
	sim bool
	reg *pinmux.Registry

	mu      sync.Mutex
	panel   *rgb.Panel
	report  *bringup.Report
	current string
	cycle   *pattern.Cycle
}

func newApp(reg *pinmux.Registry, sim bool) *app {
	return &app{reg: reg, sim: sim}
}

// setResult records a bring-up outcome. res.Panel is nil when it failed.
func (a *app) setResult(res *bringup.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rep := res.Report
	a.report = &rep
	a.panel = res.Panel
}

func (a *app) Status() web.Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := web.Status{
		Ready:   a.panel != nil,
		Sim:     a.sim,
		Report:  a.report,
		Pins:    map[string]string{},
		Pattern: a.current,
	}
	if a.reg != nil {
		for name, role := range a.reg.Snapshot() {
			st.Pins[name] = role.String()
		}
	}
	if a.panel != nil {
		st.Draws = a.panel.Draws()
	}
	return st
}

func (a *app) Preview() image.Image {
	a.mu.Lock()
	p := a.panel
	a.mu.Unlock()
	if p == nil {
		return nil
	}
	if fb := p.Snapshot(); fb != nil {
		return fb
	}
	return nil
}

func (a *app) DrawPattern(name string) error {
	a.mu.Lock()
	p := a.panel
	a.mu.Unlock()
	if p == nil {
		return web.ErrNotReady
	}
	if err := pattern.Draw(p, name); err != nil {
		return err
	}
	a.mu.Lock()
	a.current = name
	a.mu.Unlock()
	return nil
}

func (a *app) DrawImage(img image.Image) error {
	a.mu.Lock()
	p := a.panel
	a.mu.Unlock()
	if p == nil {
		return web.ErrNotReady
	}
	r := p.Bounds()
	fit, err := convert.Fit(img, r.Dx(), r.Dy())
	if err != nil {
		return err
	}
	pix, err := convert.ToRGB565(fit, r.Dx(), r.Dy())
	if err != nil {
		return err
	}
	if err := p.DrawRect(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, pix); err != nil {
		return err
	}
	a.mu.Lock()
	a.current = ""
	a.mu.Unlock()
	return nil
}

// stepCycle draws the next pattern of the soak cycle.
func (a *app) stepCycle() {
	a.mu.Lock()
	p, c := a.panel, a.cycle
	a.mu.Unlock()
	if p == nil || c == nil {
		return
	}
	name, err := c.Step(p)
	if err != nil {
		appLog.Error("soak step failed", err, "pattern", name, "showing", c.Current())
		return
	}
	a.mu.Lock()
	a.current = name
	a.mu.Unlock()
	appLog.Debug("soak step", "pattern", name, "draws", p.Draws())
}

// startSoak schedules the pattern cycle. The returned cron must be stopped
// by the caller.
func (a *app) startSoak(schedule string, names []string) (*cron.Cron, error) {
	c, err := pattern.NewCycle(names...)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.cycle = c
	a.mu.Unlock()

	sched := cron.New(cron.WithLogger(appLog.CronLogger()))
	if _, err := sched.AddFunc(schedule, a.stepCycle); err != nil {
		return nil, fmt.Errorf("soak schedule %q: %w", schedule, err)
	}
	sched.Start()
	appLog.Info("soak scheduler started", "cron", schedule, "cycle", len(names))
	return sched, nil
}

func (a *app) close() {
	a.mu.Lock()
	p := a.panel
	a.panel = nil
	a.mu.Unlock()
	if p != nil {
		if err := p.Close(); err != nil {
			appLog.Error("panel close", err)
		}
	}
}
