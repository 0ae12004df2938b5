// Package rgb drives a panel over a parallel RGB interface: a pixel clock,
// horizontal and vertical sync, data enable and a 16-bit RGB565 data bus,
// streamed continuously from a frame buffer by the display controller.
package rgb

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"rgblcd/internal/pinmux"
)

// Engine is the display controller generating the parallel timing.
type Engine interface {
	// Configure programs the timing and returns the scan-out memory.
	Configure(cfg Config) (*FrameBuffer, error)
	// Reset resets the controller's panel handle.
	Reset() error
	// Init starts streaming.
	Init() error
	// Flush returns once the controller has accepted the pixels in r.
	Flush(r image.Rectangle) error
	Close() error
}

var errNotReady = errors.New("rgb: panel not initialized")

// Panel is an open parallel interface. DrawRect is safe for concurrent use.
type Panel struct {
	cfg Config
	eng Engine
	reg *pinmux.Registry

	mu     sync.Mutex
	fb     *FrameBuffer
	ready  bool
	closed bool
	draws  int
}

// Open validates cfg, takes ownership of its pins and configures eng.
//
// The sync lines must either be unassigned or be passed in handed, already
// turned over from another role with pinmux.Output.Handoff. A sync line still
// acting as reset output is refused.
func Open(cfg Config, eng Engine, reg *pinmux.Registry, handed ...*pinmux.SyncPin) (*Panel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: no engine", ErrConfig)
	}
	if reg == nil {
		reg = pinmux.NewRegistry()
	}

	isHanded := func(name string) bool {
		for _, h := range handed {
			if h != nil && h.Name() == name && reg.Role(name) == pinmux.HardwareSync {
				return true
			}
		}
		return false
	}
	var syncs []string
	for _, n := range []string{cfg.Pins.HSync, cfg.Pins.VSync} {
		if isHanded(n) {
			continue
		}
		if r := reg.Role(n); r != pinmux.Unassigned {
			return nil, fmt.Errorf("%w: sync pin %s is %s", ErrConfig, n, r)
		}
		syncs = append(syncs, n)
	}

	data := cfg.Pins.dataSide()
	if err := reg.ClaimData(data...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	// Pins handed in by the caller stay theirs; only our own claims are
	// rolled back.
	var claimed []string
	rollback := func() {
		reg.ReleaseSync(claimed...)
		reg.ReleaseData(data...)
	}
	for _, n := range syncs {
		if _, err := reg.ClaimSyncName(n); err != nil {
			rollback()
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		claimed = append(claimed, n)
	}

	fb, err := eng.Configure(cfg)
	if err != nil {
		rollback()
		if errors.Is(err, ErrConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if fb == nil || fb.Rect.Dx() != cfg.Timing.HRes || fb.Rect.Dy() != cfg.Timing.VRes || fb.Stride < cfg.Timing.HRes {
		rollback()
		_ = eng.Close()
		return nil, fmt.Errorf("%w: engine returned an unusable frame buffer", ErrConfig)
	}

	return &Panel{cfg: cfg, eng: eng, reg: reg, fb: fb}, nil
}

// Reset resets the panel handle. Streaming stops until Init.
func (p *Panel) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("rgb: panel closed")
	}
	p.ready = false
	if err := p.eng.Reset(); err != nil {
		return fmt.Errorf("rgb: reset: %w", err)
	}
	return nil
}

// Init starts streaming the frame buffer.
func (p *Panel) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("rgb: panel closed")
	}
	if err := p.eng.Init(); err != nil {
		return fmt.Errorf("rgb: init: %w", err)
	}
	p.ready = true
	return nil
}

// DrawRect copies pixels into the half-open rectangle [x0,x1)x[y0,y1) and
// returns once the controller accepted them. pixels holds the rectangle row
// by row and is not retained. A rectangle outside the frame changes nothing.
func (p *Panel) DrawRect(x0, y0, x1, y1 int, pixels []uint16) error {
	r := image.Rect(x0, y0, x1, y1)
	if x0 < 0 || y0 < 0 || x0 >= x1 || y0 >= y1 || !r.In(p.fb.Rect) {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d) in %v", ErrOutOfBounds, x0, y0, x1, y1, p.fb.Rect)
	}
	w, h := x1-x0, y1-y0
	if len(pixels) != w*h {
		return fmt.Errorf("%w: %d pixels for a %dx%d rectangle", ErrOutOfBounds, len(pixels), w, h)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.ready {
		return errNotReady
	}
	for y := 0; y < h; y++ {
		off := p.fb.PixOffset(x0, y0+y)
		copy(p.fb.Pix[off:off+w], pixels[y*w:(y+1)*w])
	}
	if err := p.eng.Flush(r); err != nil {
		return fmt.Errorf("rgb: flush %v: %w", r, err)
	}
	p.draws++
	return nil
}

// Snapshot copies the current frame buffer, nil once the panel is closed.
func (p *Panel) Snapshot() *FrameBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.fb.Clone()
}

func (p *Panel) Bounds() image.Rectangle { return p.fb.Rect }

func (p *Panel) Timing() Timing { return p.cfg.Timing }

// Draws is the number of completed DrawRect calls.
func (p *Panel) Draws() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draws
}

// Close stops the engine. The pins keep their roles.
func (p *Panel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.ready = false
	return p.eng.Close()
}
