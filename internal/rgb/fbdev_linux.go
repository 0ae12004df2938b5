//go:build linux

package rgb

import (
	"errors"
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	fbioGetVScreenInfo = 0x4600
	fbioPutVScreenInfo = 0x4601
	fbioGetFScreenInfo = 0x4602
	fbioBlank          = 0x4611
	fbioWaitForVSync   = 0x40044620

	fbBlankUnblank   = 0
	fbBlankPowerdown = 4
)

// FBDevEngine drives a display controller exposed as a Linux frame buffer
// device, e.g. a DPI output generating RGB565 parallel timing.
type FBDevEngine struct {
	Path string

	fd  int
	mem []byte
	fb  *FrameBuffer
}

func NewFBDev(path string) *FBDevEngine {
	return &FBDevEngine{Path: path, fd: -1}
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (e *FBDevEngine) Configure(cfg Config) (*FrameBuffer, error) {
	if e.fd >= 0 {
		return nil, fmt.Errorf("%w: %s already configured", ErrConfig, e.Path)
	}
	fd, err := unix.Open(e.Path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConfig, e.Path, err)
	}
	fail := func(err error) (*FrameBuffer, error) {
		_ = unix.Close(fd)
		return nil, err
	}

	var v fbVarScreeninfo
	if err := ioctl(fd, fbioGetVScreenInfo, unsafe.Pointer(&v)); err != nil {
		return fail(fmt.Errorf("%w: %s: get var screeninfo: %w", ErrConfig, e.Path, err))
	}
	v.apply(cfg)
	if err := ioctl(fd, fbioPutVScreenInfo, unsafe.Pointer(&v)); err != nil {
		return fail(fmt.Errorf("%w: %s: put var screeninfo: %w", ErrConfig, e.Path, err))
	}
	if v.BitsPerPixel != 16 || int(v.Xres) != cfg.Timing.HRes || int(v.Yres) != cfg.Timing.VRes {
		return fail(fmt.Errorf("%w: %s accepted %dx%d at %d bpp", ErrConfig, e.Path, v.Xres, v.Yres, v.BitsPerPixel))
	}

	var f fbFixScreeninfo
	if err := ioctl(fd, fbioGetFScreenInfo, unsafe.Pointer(&f)); err != nil {
		return fail(fmt.Errorf("%w: %s: get fix screeninfo: %w", ErrConfig, e.Path, err))
	}
	line := int(f.LineLength)
	if line < cfg.Timing.HRes*BytesPerPixel || line%BytesPerPixel != 0 {
		return fail(fmt.Errorf("%w: %s line length %d too short", ErrConfig, e.Path, line))
	}
	size := line * cfg.Timing.VRes
	if size > int(f.SmemLen) || size > cfg.Placement.Capacity() {
		return fail(fmt.Errorf("%w: %s frame of %d bytes exceeds memory", ErrConfig, e.Path, size))
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fail(fmt.Errorf("%w: mmap %s: %w", ErrConfig, e.Path, err))
	}

	e.fd = fd
	e.mem = mem
	e.fb = &FrameBuffer{
		Pix:    unsafe.Slice((*uint16)(unsafe.Pointer(&mem[0])), size/BytesPerPixel),
		Stride: line / BytesPerPixel,
		Rect:   image.Rect(0, 0, cfg.Timing.HRes, cfg.Timing.VRes),
	}
	return e.fb, nil
}

func (e *FBDevEngine) blank(mode uintptr) error {
	if e.fd < 0 {
		return errors.New("rgb: fbdev not configured")
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(e.fd), fbioBlank, mode)
	if errno != 0 {
		return fmt.Errorf("rgb: %s blank %d: %w", e.Path, mode, errno)
	}
	return nil
}

// Reset powers the output down and clears the frame.
func (e *FBDevEngine) Reset() error {
	if err := e.blank(fbBlankPowerdown); err != nil {
		return err
	}
	clear(e.fb.Pix)
	return nil
}

func (e *FBDevEngine) Init() error {
	return e.blank(fbBlankUnblank)
}

// Flush waits for the next vertical sync. The controller scans the mapped
// memory directly, so nothing needs copying.
func (e *FBDevEngine) Flush(image.Rectangle) error {
	if e.fd < 0 {
		return errors.New("rgb: fbdev not configured")
	}
	var crtc uint32
	err := ioctl(e.fd, fbioWaitForVSync, unsafe.Pointer(&crtc))
	if err == nil || errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
		return nil
	}
	return fmt.Errorf("rgb: %s wait for vsync: %w", e.Path, err)
}

func (e *FBDevEngine) Close() error {
	if e.fd < 0 {
		return nil
	}
	var errs []error
	if e.mem != nil {
		errs = append(errs, unix.Munmap(e.mem))
		e.mem = nil
		e.fb = nil
	}
	errs = append(errs, unix.Close(e.fd))
	e.fd = -1
	return errors.Join(errs...)
}
