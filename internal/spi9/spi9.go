// Package spi9 is the serial transport for the panel's 3-wire register
// interface: one 9-bit unit per SPI transaction, mode 0, MSB first.
package spi9

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"rgblcd/internal/pinmux"
	"rgblcd/internal/sercodec"
)

var (
	// ErrBusUnavailable is returned by Open when the bus cannot be claimed.
	ErrBusUnavailable = errors.New("spi9: bus unavailable")
	// ErrTransport is returned by Send when a transaction does not complete.
	ErrTransport = errors.New("spi9: transport error")
)

// Sender transmits one 9-bit unit and returns once it has been clocked out.
type Sender interface {
	Send(u sercodec.Unit) error
}

// Opts configures a Transport.
type Opts struct {
	// Freq is the serial clock. The panel controller accepts up to 10MHz.
	Freq physic.Frequency
	Mode spi.Mode
	// QueueDepth bounds the transactions outstanding on the bus, including
	// ones that timed out and have not returned yet.
	QueueDepth int
	// MaxTransfer caps a single transfer in bytes. Open lowers it to the
	// driver's limit and fails if the result cannot hold one word.
	MaxTransfer int
	// Timeout bounds a single Send. Zero disables it.
	Timeout time.Duration
	// CS, when set, is driven low around every transaction and the port is
	// connected without its own chip select.
	CS gpio.PinOut
}

// DefaultOpts matches the panel's register interface.
var DefaultOpts = Opts{
	Freq:        10 * physic.MegaHertz,
	Mode:        spi.Mode0,
	QueueDepth:  7,
	MaxTransfer: 10 * 1024,
	Timeout:     time.Second,
}

// wordBytes is the size of one transaction on the wire.
const wordBytes = 2

// Transport owns the serial bus until Close.
type Transport struct {
	port  spi.PortCloser
	conn  spi.Conn
	cs    gpio.PinOut
	reg   *pinmux.Registry
	pins  []string
	opts  Opts
	slots chan struct{}

	mu     sync.Mutex // serializes transactions
	buf    []byte
	closed atomic.Bool
	count  atomic.Int64
}

// Open claims the bus pins in reg and connects port for 9-bit words.
func Open(port spi.PortCloser, opts *Opts, reg *pinmux.Registry) (*Transport, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: no port", ErrBusUnavailable)
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Freq <= 0 {
		o.Freq = DefaultOpts.Freq
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultOpts.QueueDepth
	}
	if o.MaxTransfer < wordBytes {
		return nil, fmt.Errorf("%w: max transfer %d too small for one word", ErrBusUnavailable, o.MaxTransfer)
	}

	pins := busPins(port, o.CS)
	if reg != nil {
		if err := reg.ClaimBus(pins...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBusUnavailable, err)
		}
	}

	mode := o.Mode
	if o.CS != nil {
		mode |= spi.NoCS
		if err := o.CS.Out(gpio.High); err != nil {
			release(reg, pins)
			return nil, fmt.Errorf("%w: chip select %s: %w", ErrBusUnavailable, o.CS.Name(), err)
		}
	}

	c, err := port.Connect(o.Freq, mode, sercodec.Bits)
	if err != nil {
		release(reg, pins)
		return nil, fmt.Errorf("%w: connect %s: %w", ErrBusUnavailable, port, err)
	}
	if l, ok := c.(conn.Limits); ok {
		if m := l.MaxTxSize(); m > 0 && m < o.MaxTransfer {
			o.MaxTransfer = m
		}
	}
	if o.MaxTransfer < wordBytes {
		release(reg, pins)
		return nil, fmt.Errorf("%w: %s allows %d bytes per transfer", ErrBusUnavailable, port, o.MaxTransfer)
	}

	return &Transport{
		port:  port,
		conn:  c,
		cs:    o.CS,
		reg:   reg,
		pins:  pins,
		opts:  o,
		slots: make(chan struct{}, o.QueueDepth),
		buf:   make([]byte, 0, wordBytes),
	}, nil
}

// busPins lists the pins the port reports plus the manual chip select.
func busPins(port spi.PortCloser, cs gpio.PinOut) []string {
	var names []string
	add := func(p interface{ Name() string }) {
		if p == nil || p == gpio.INVALID {
			return
		}
		for _, n := range names {
			if n == p.Name() {
				return
			}
		}
		names = append(names, p.Name())
	}
	if p, ok := port.(spi.Pins); ok {
		add(p.CLK())
		add(p.MOSI())
		if cs == nil {
			add(p.CS())
		}
	}
	if cs != nil {
		add(cs)
	}
	return names
}

func release(reg *pinmux.Registry, pins []string) {
	if reg != nil {
		reg.ReleaseBus(pins...)
	}
}

// Send clocks out u as a single transaction and waits for completion.
func (t *Transport) Send(u sercodec.Unit) error {
	if !u.Valid() {
		return fmt.Errorf("%w: unit 0x%X exceeds %d bits", ErrTransport, uint16(u), sercodec.Bits)
	}

	if t.closed.Load() {
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}

	select {
	case t.slots <- struct{}{}:
	default:
		return fmt.Errorf("%w: queue full (%d outstanding)", ErrTransport, cap(t.slots))
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-t.slots }()
		done <- t.tx(u)
	}()

	if t.opts.Timeout <= 0 {
		return <-done
	}
	timer := time.NewTimer(t.opts.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: %v not completed after %v", ErrTransport, u, t.opts.Timeout)
	}
}

func (t *Transport) tx(u sercodec.Unit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}

	if t.cs != nil {
		if err := t.cs.Out(gpio.Low); err != nil {
			return fmt.Errorf("%w: chip select: %w", ErrTransport, err)
		}
	}
	t.buf = sercodec.AppendWord(t.buf[:0], u)
	err := t.conn.Tx(t.buf, nil)
	if t.cs != nil {
		if csErr := t.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v: %w", ErrTransport, u, err)
	}
	t.count.Add(1)
	return nil
}

// Count returns the number of units sent successfully.
func (t *Transport) Count() int {
	return int(t.count.Load())
}

// MaxTransfer is the effective transfer cap after the driver's limit.
func (t *Transport) MaxTransfer() int {
	return t.opts.MaxTransfer
}

// Pins returns the names of the pins held by the transport.
func (t *Transport) Pins() []string {
	return append([]string(nil), t.pins...)
}

// Close releases the bus pins and closes the port. It does not wait for a
// transaction stuck in the driver. Calling it again is a no-op.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	release(t.reg, t.pins)
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("spi9: close %s: %w", t.port, err)
	}
	return nil
}
