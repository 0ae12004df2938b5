package rgb

import (
	"image"
	"sync"
)

// SimEngine keeps the scan-out memory in RAM. It backs tests and the -sim
// mode of the daemon.
type SimEngine struct {
	mu sync.Mutex
	fb *FrameBuffer

	// Set to make the matching call fail.
	ConfigureErr error
	InitErr      error
	FlushErr     error

	Resets  int
	Inits   int
	Flushes int
	Dirty   image.Rectangle
	Closed  bool
}

func NewSimEngine() *SimEngine {
	return &SimEngine{}
}

func (e *SimEngine) Configure(cfg Config) (*FrameBuffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ConfigureErr != nil {
		return nil, e.ConfigureErr
	}
	e.fb = NewFrameBuffer(cfg)
	return e.fb, nil
}

func (e *SimEngine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Resets++
	return nil
}

func (e *SimEngine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InitErr != nil {
		return e.InitErr
	}
	e.Inits++
	return nil
}

func (e *SimEngine) Flush(r image.Rectangle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FlushErr != nil {
		return e.FlushErr
	}
	e.Flushes++
	e.Dirty = e.Dirty.Union(r)
	return nil
}

func (e *SimEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

// Memory returns the scan-out memory as configured, nil before Configure.
func (e *SimEngine) Memory() *FrameBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fb
}
