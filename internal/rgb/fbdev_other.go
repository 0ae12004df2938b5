//go:build !linux

package rgb

import (
	"fmt"
	"image"
)

// FBDevEngine is only available on Linux.
type FBDevEngine struct {
	Path string
}

func NewFBDev(path string) *FBDevEngine {
	return &FBDevEngine{Path: path}
}

func (e *FBDevEngine) Configure(Config) (*FrameBuffer, error) {
	return nil, fmt.Errorf("%w: frame buffer device %s unsupported on this OS", ErrConfig, e.Path)
}

func (e *FBDevEngine) Reset() error                { return nil }
func (e *FBDevEngine) Init() error                 { return nil }
func (e *FBDevEngine) Flush(image.Rectangle) error { return nil }
func (e *FBDevEngine) Close() error                { return nil }
