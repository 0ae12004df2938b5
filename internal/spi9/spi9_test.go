package spi9

import (
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"rgblcd/internal/pinmux"
	"rgblcd/internal/sercodec"
)

// pinnedPort is a recording port that reports its bus pins and remembers
// how it was connected.
type pinnedPort struct {
	spitest.Record
	clk, mosi, cs gpio.PinIO

	freq physic.Frequency
	mode spi.Mode
	bits int
}

func newPinnedPort() *pinnedPort {
	return &pinnedPort{
		clk:  &gpiotest.Pin{N: "GPIO45", Num: 45},
		mosi: &gpiotest.Pin{N: "GPIO48", Num: 48},
		cs:   &gpiotest.Pin{N: "GPIO38", Num: 38},
	}
}

func (p *pinnedPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.freq, p.mode, p.bits = f, mode, bits
	return p.Record.Connect(f, mode, bits)
}

func (p *pinnedPort) CLK() gpio.PinOut  { return p.clk }
func (p *pinnedPort) MOSI() gpio.PinOut { return p.mosi }
func (p *pinnedPort) MISO() gpio.PinIn  { return gpio.INVALID }
func (p *pinnedPort) CS() gpio.PinOut   { return p.cs }

func TestOpenConnectsNineBitMode0(t *testing.T) {
	port := newPinnedPort()
	reg := pinmux.NewRegistry()
	tr, err := Open(port, nil, reg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if port.bits != 9 || port.mode != spi.Mode0 || port.freq != 10*physic.MegaHertz {
		t.Errorf("connected with %v %v %d bits", port.freq, port.mode, port.bits)
	}
	for _, n := range []string{"GPIO45", "GPIO48", "GPIO38"} {
		if reg.Role(n) != pinmux.SerialBus {
			t.Errorf("%s role = %v", n, reg.Role(n))
		}
	}
}

func TestSendOneWordPerTransaction(t *testing.T) {
	port := &spitest.Record{}
	tr, err := Open(port, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	units := []sercodec.Unit{sercodec.Command(0xF0), sercodec.Data(0x55), sercodec.Data(0xAA)}
	for _, u := range units {
		if err := tr.Send(u); err != nil {
			t.Fatal(err)
		}
	}
	if len(port.Ops) != len(units) {
		t.Fatalf("got %d transactions, want %d", len(port.Ops), len(units))
	}
	for i, op := range port.Ops {
		got, err := sercodec.Word(op.W)
		if err != nil {
			t.Fatal(err)
		}
		if got != units[i] {
			t.Errorf("op %d = %v, want %v", i, got, units[i])
		}
	}
	if tr.Count() != 3 {
		t.Errorf("Count = %d", tr.Count())
	}
}

func TestOpenAlreadyConnected(t *testing.T) {
	port := newPinnedPort()
	port.Initialized = true
	reg := pinmux.NewRegistry()
	if _, err := Open(port, nil, reg); !errors.Is(err, ErrBusUnavailable) {
		t.Fatalf("err = %v, want ErrBusUnavailable", err)
	}
	if len(reg.Snapshot()) != 0 {
		t.Errorf("pins left claimed: %v", reg.Snapshot())
	}
}

func TestOpenPinConflict(t *testing.T) {
	port := newPinnedPort()
	reg := pinmux.NewRegistry()
	if _, err := reg.Output(port.mosi); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(port, nil, reg); !errors.Is(err, ErrBusUnavailable) {
		t.Fatalf("err = %v, want ErrBusUnavailable", err)
	}
	if port.Initialized {
		t.Error("port connected despite pin conflict")
	}
}

func TestCloseReleasesPins(t *testing.T) {
	port := newPinnedPort()
	reg := pinmux.NewRegistry()
	tr, err := Open(port, nil, reg)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := reg.ClaimData("GPIO45", "GPIO48"); err != nil {
		t.Fatalf("pins not released: %v", err)
	}
	if err := tr.Send(sercodec.Command(0x11)); !errors.Is(err, ErrTransport) {
		t.Fatalf("Send after Close: err = %v", err)
	}
}

// levelLog records chip select levels.
type levelLog struct {
	gpiotest.Pin
	mu     sync.Mutex
	levels []gpio.Level
}

func (l *levelLog) Out(v gpio.Level) error {
	l.mu.Lock()
	l.levels = append(l.levels, v)
	l.mu.Unlock()
	return l.Pin.Out(v)
}

func TestManualChipSelect(t *testing.T) {
	port := newPinnedPort()
	cs := &levelLog{Pin: gpiotest.Pin{N: "GPIO8"}}
	reg := pinmux.NewRegistry()
	opts := DefaultOpts
	opts.CS = cs
	tr, err := Open(port, &opts, reg)
	if err != nil {
		t.Fatal(err)
	}
	if port.mode&spi.NoCS == 0 {
		t.Errorf("mode %v lacks NoCS", port.mode)
	}
	if reg.Role("GPIO8") != pinmux.SerialBus || reg.Role("GPIO38") != pinmux.Unassigned {
		t.Errorf("roles = %v", reg.Snapshot())
	}
	if err := tr.Send(sercodec.Command(0x29)); err != nil {
		t.Fatal(err)
	}
	want := []gpio.Level{gpio.High, gpio.Low, gpio.High}
	if len(cs.levels) != len(want) {
		t.Fatalf("cs levels = %v", cs.levels)
	}
	for i := range want {
		if cs.levels[i] != want[i] {
			t.Fatalf("cs levels = %v, want %v", cs.levels, want)
		}
	}
}

// stuckPort hands out a connection whose transactions block until release
// is closed, or fail with err.
type stuckPort struct {
	spitest.Record
	release chan struct{}
	err     error
}

func (p *stuckPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	return &stuckConn{p: p}, nil
}

type stuckConn struct{ p *stuckPort }

func (c *stuckConn) String() string                 { return "stuck" }
func (c *stuckConn) Duplex() conn.Duplex            { return conn.Half }
func (c *stuckConn) TxPackets(p []spi.Packet) error { return errors.New("unsupported") }
func (c *stuckConn) Tx(w, r []byte) error {
	if c.p.release != nil {
		<-c.p.release
	}
	return c.p.err
}

func TestTimeoutFillsQueue(t *testing.T) {
	port := &stuckPort{release: make(chan struct{})}
	opts := DefaultOpts
	opts.QueueDepth = 2
	opts.Timeout = 10 * time.Millisecond
	tr, err := Open(port, &opts, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		start := time.Now()
		if err := tr.Send(sercodec.Data(byte(i))); !errors.Is(err, ErrTransport) {
			t.Fatalf("send %d: err = %v, want ErrTransport", i, err)
		}
		if time.Since(start) < opts.Timeout {
			t.Fatalf("send %d returned before the timeout", i)
		}
	}

	start := time.Now()
	if err := tr.Send(sercodec.Data(2)); !errors.Is(err, ErrTransport) {
		t.Fatalf("queue full: err = %v", err)
	}
	if time.Since(start) >= opts.Timeout {
		t.Error("queue-full send waited for the timeout")
	}
	close(port.release)
	_ = tr.Close()
}

func TestTxErrorIsTransportError(t *testing.T) {
	port := &stuckPort{err: errors.New("bus fault")}
	tr, err := Open(port, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(sercodec.Command(0x11)); !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	if tr.Count() != 0 {
		t.Errorf("Count = %d", tr.Count())
	}
}

func TestSendRejectsWideUnit(t *testing.T) {
	tr, err := Open(&spitest.Record{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(sercodec.Unit(0x3FF)); !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenRejectsTinyTransfers(t *testing.T) {
	opts := DefaultOpts
	opts.MaxTransfer = 1
	if _, err := Open(&spitest.Record{}, &opts, nil); !errors.Is(err, ErrBusUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Open(nil, nil, nil); !errors.Is(err, ErrBusUnavailable) {
		t.Fatalf("nil port: err = %v", err)
	}
}

// limitedPort connects with a driver that caps transfers at max bytes.
type limitedPort struct {
	spitest.Record
	max int
}

func (p *limitedPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	c, err := p.Record.Connect(f, mode, bits)
	if err != nil {
		return nil, err
	}
	return &limitedConn{Conn: c, max: p.max}, nil
}

type limitedConn struct {
	spi.Conn
	max int
}

func (c *limitedConn) MaxTxSize() int { return c.max }

func TestMaxTransferFollowsDriverLimit(t *testing.T) {
	tests := []struct {
		name   string
		driver int
		want   int
	}{
		{"spidev buffer", 4096, 4096},
		{"no limit", 0, DefaultOpts.MaxTransfer},
		{"larger than asked", 64 * 1024, DefaultOpts.MaxTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Open(&limitedPort{max: tt.driver}, nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			defer tr.Close()
			if got := tr.MaxTransfer(); got != tt.want {
				t.Errorf("MaxTransfer = %d, want %d", got, tt.want)
			}
			if err := tr.Send(sercodec.Command(0x29)); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestOpenRejectsDriverTooSmallForWord(t *testing.T) {
	reg := pinmux.NewRegistry()
	port := &limitedPort{max: 1}
	if _, err := Open(port, nil, reg); !errors.Is(err, ErrBusUnavailable) {
		t.Fatalf("err = %v, want ErrBusUnavailable", err)
	}
	if len(reg.Snapshot()) != 0 {
		t.Errorf("pins left claimed: %v", reg.Snapshot())
	}
}
