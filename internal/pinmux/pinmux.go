// Package pinmux tracks which role every board pin currently plays.
//
// A pin has exactly one role at a time. Roles are claimed from Unassigned,
// with two exceptions: serial bus pins go back to Unassigned when the bus is
// released, and a reset output turns into a hardware sync line through
// Output.Handoff. The second transition is one way; once a pin is owned by
// the timing generator it can never be driven as a plain output again.
package pinmux

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/pin"
)

// ErrRole is returned when a pin is used in a role it does not hold, or when
// a claim conflicts with the pin's current role.
var ErrRole = errors.New("pinmux: role conflict")

// Role is the function a pin currently serves.
type Role uint8

const (
	Unassigned Role = iota
	// DigitalOutput is a plain digital output, e.g. the backlight enable.
	DigitalOutput
	// ResetOutput is the digital reset line of the panel controller.
	ResetOutput
	// SerialBus pins are owned by an open serial transport.
	SerialBus
	// HardwareSync pins carry timing signals driven by the parallel interface.
	HardwareSync
	// ParallelData pins carry pixel data, the pixel clock or data enable.
	ParallelData
)

var roleNames = [...]string{
	Unassigned:    "unassigned",
	DigitalOutput: "output",
	ResetOutput:   "reset",
	SerialBus:     "serial",
	HardwareSync:  "sync",
	ParallelData:  "data",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Reset pulse timing. The controller latches reset on the low phase and needs
// the final settle before it accepts serial traffic.
const (
	ResetHoldHigh = 10 * time.Millisecond
	ResetHoldLow  = 50 * time.Millisecond
	ResetSettle   = 100 * time.Millisecond
)

// Registry records pin roles by pin name. The zero value is not usable; use
// NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]Role
}

func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]Role)}
}

// Role returns the current role of the named pin.
func (r *Registry) Role(name string) Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[name]
}

// Snapshot returns a copy of all assigned roles.
func (r *Registry) Snapshot() map[string]Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Role, len(r.roles))
	for k, v := range r.roles {
		if v != Unassigned {
			out[k] = v
		}
	}
	return out
}

// Names returns the names of all assigned pins, sorted.
func (r *Registry) Names() []string {
	snap := r.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// claimLocked moves every name from Unassigned to role. Either all names are
// claimed or none is.
func (r *Registry) claimLocked(role Role, names ...string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("%w: empty pin name for %s", ErrRole, role)
		}
		if seen[n] {
			return fmt.Errorf("%w: pin %s listed twice for %s", ErrRole, n, role)
		}
		seen[n] = true
		if cur := r.roles[n]; cur != Unassigned {
			return fmt.Errorf("%w: pin %s is %s, cannot become %s", ErrRole, n, cur, role)
		}
	}
	for _, n := range names {
		r.roles[n] = role
	}
	return nil
}

func (r *Registry) claim(role Role, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claimLocked(role, names...)
}

// Output configures p as a plain digital output.
func (r *Registry) Output(p gpio.PinOut) (*Output, error) {
	return r.output(p, DigitalOutput)
}

// ResetOutput configures p as the panel reset line.
func (r *Registry) ResetOutput(p gpio.PinOut) (*Output, error) {
	return r.output(p, ResetOutput)
}

func (r *Registry) output(p gpio.PinOut, role Role) (*Output, error) {
	if p == nil || p == gpio.INVALID {
		return nil, fmt.Errorf("%w: invalid pin for %s", ErrRole, role)
	}
	if err := r.claim(role, p.Name()); err != nil {
		return nil, err
	}
	return &Output{reg: r, pin: p, role: role}, nil
}

// ClaimBus hands the named pins to a serial transport.
func (r *Registry) ClaimBus(names ...string) error {
	return r.claim(SerialBus, names...)
}

// ReleaseBus returns serial bus pins to Unassigned. Names not currently held
// by the bus are left untouched.
func (r *Registry) ReleaseBus(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if r.roles[n] == SerialBus {
			delete(r.roles, n)
		}
	}
}

// ClaimData hands the named pins to the parallel pixel interface.
func (r *Registry) ClaimData(names ...string) error {
	return r.claim(ParallelData, names...)
}

// ReleaseData returns data pins to Unassigned. Names held in another role
// are left untouched.
func (r *Registry) ReleaseData(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if r.roles[n] == ParallelData {
			delete(r.roles, n)
		}
	}
}

// ClaimSync hands an unassigned pin to the timing generator. A pin that is
// still the reset output is rejected; it has to go through Output.Handoff.
func (r *Registry) ClaimSync(p pin.Pin, fn pin.Func) (*SyncPin, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil sync pin", ErrRole)
	}
	if err := r.claim(HardwareSync, p.Name()); err != nil {
		return nil, err
	}
	if err := route(p, fn); err != nil {
		r.mu.Lock()
		delete(r.roles, p.Name())
		r.mu.Unlock()
		return nil, err
	}
	return &SyncPin{name: p.Name(), fn: fn}, nil
}

// ClaimSyncName is ClaimSync for hosts where the sync line is only known by
// name, e.g. when the display controller routes it itself.
func (r *Registry) ClaimSyncName(name string) (*SyncPin, error) {
	if err := r.claim(HardwareSync, name); err != nil {
		return nil, err
	}
	return &SyncPin{name: name}, nil
}

// ReleaseSync returns sync pins to Unassigned. It is meant for rolling back a
// claim whose interface never started; names in another role are left alone.
func (r *Registry) ReleaseSync(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if r.roles[n] == HardwareSync {
			delete(r.roles, n)
		}
	}
}

func route(p pin.Pin, fn pin.Func) error {
	if fn == "" {
		return nil
	}
	pf, ok := p.(pin.PinFunc)
	if !ok {
		return nil
	}
	if err := pf.SetFunc(fn); err != nil {
		return fmt.Errorf("pinmux: route %s to %s: %w", p.Name(), fn, err)
	}
	return nil
}

// Output is a pin driven by software. It stops working once handed off.
type Output struct {
	reg  *Registry
	pin  gpio.PinOut
	role Role

	mu   sync.Mutex
	dead bool
}

func (o *Output) Name() string { return o.pin.Name() }

func (o *Output) Role() Role { return o.role }

// Set drives the pin to level. It returns once the level is latched.
func (o *Output) Set(level gpio.Level) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setLocked(level)
}

func (o *Output) setLocked(level gpio.Level) error {
	if o.dead {
		return fmt.Errorf("%w: pin %s was handed off", ErrRole, o.pin.Name())
	}
	if err := o.pin.Out(level); err != nil {
		return fmt.Errorf("pinmux: drive %s %s: %w", o.pin.Name(), level, err)
	}
	return nil
}

// ResetPulse drives high, low, high with the controller's hold times. It
// returns after the final settle, at least 160ms after it started.
func (o *Output) ResetPulse(clock clockwork.Clock) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.role != ResetOutput {
		return fmt.Errorf("%w: pin %s is %s, not reset", ErrRole, o.pin.Name(), o.role)
	}
	steps := []struct {
		level gpio.Level
		hold  time.Duration
	}{
		{gpio.High, ResetHoldHigh},
		{gpio.Low, ResetHoldLow},
		{gpio.High, ResetSettle},
	}
	for _, s := range steps {
		if err := o.setLocked(s.level); err != nil {
			return err
		}
		clock.Sleep(s.hold)
	}
	return nil
}

// Handoff turns the reset line into a hardware sync line routed to fn. The
// Output is unusable afterwards and a second Handoff fails.
func (o *Output) Handoff(fn pin.Func) (*SyncPin, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dead {
		return nil, fmt.Errorf("%w: pin %s already handed off", ErrRole, o.pin.Name())
	}
	if o.role != ResetOutput {
		return nil, fmt.Errorf("%w: only the reset line can become a sync line, %s is %s", ErrRole, o.pin.Name(), o.role)
	}
	if err := route(o.pin, fn); err != nil {
		return nil, err
	}

	name := o.pin.Name()
	o.reg.mu.Lock()
	defer o.reg.mu.Unlock()
	if cur := o.reg.roles[name]; cur != ResetOutput {
		return nil, fmt.Errorf("%w: pin %s is %s in registry", ErrRole, name, cur)
	}
	o.reg.roles[name] = HardwareSync
	o.dead = true
	return &SyncPin{name: name, fn: fn}, nil
}

// SyncPin is a pin owned by the timing generator.
type SyncPin struct {
	name string
	fn   pin.Func
}

func (s *SyncPin) Name() string { return s.name }

func (s *SyncPin) Func() pin.Func { return s.fn }
