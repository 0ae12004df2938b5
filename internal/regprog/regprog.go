// Package regprog holds the panel register program: the ordered list of
// (command, data...) entries sent over the 9-bit serial interface, followed
// by sleep-out and display-on with their settle delays.
//
// The table itself is panel specific and lives in programs/*.yaml.
package regprog

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"rgblcd/internal/sercodec"
	"rgblcd/internal/spi9"
)

// ErrProgramAborted is returned by Run when a transaction fails. The error
// also wraps the transport failure.
var ErrProgramAborted = errors.New("regprog: program aborted")

// Default sleep-out and display-on commands and their settle delays.
const (
	CmdSleepOut          byte = 0x11
	CmdDisplayOn         byte = 0x29
	DefaultSleepOutWait       = 120 * time.Millisecond
	DefaultDisplayOnWait      = 20 * time.Millisecond
)

// DefaultName is the program embedded for the stock panel.
const DefaultName = "qmsd480"

//go:embed programs/*.yaml
var programs embed.FS

// Entry is one register write: a command followed by its data bytes. It is
// sent as a unit; there is no way to send part of an entry.
type Entry struct {
	Cmd  byte
	Data []byte
}

// Units returns the entry as serial units.
func (e Entry) Units() []sercodec.Unit {
	out := make([]sercodec.Unit, 0, 1+len(e.Data))
	out = append(out, sercodec.Command(e.Cmd))
	for _, b := range e.Data {
		out = append(out, sercodec.Data(b))
	}
	return out
}

// Program is a complete register program.
type Program struct {
	Name    string
	Version string
	Entries []Entry

	SleepOut       byte
	SleepOutDelay  time.Duration
	DisplayOn      byte
	DisplayOnDelay time.Duration
}

// programFile is the YAML layout of a program asset.
type programFile struct {
	Name             string      `yaml:"name"`
	Version          string      `yaml:"version"`
	SleepOut         *int        `yaml:"sleep_out"`
	SleepOutDelayMs  *int        `yaml:"sleep_out_delay_ms"`
	DisplayOn        *int        `yaml:"display_on"`
	DisplayOnDelayMs *int        `yaml:"display_on_delay_ms"`
	Entries          []entryFile `yaml:"entries"`
}

type entryFile struct {
	Cmd  *int  `yaml:"cmd"`
	Data []int `yaml:"data"`
}

// Default returns the embedded program for the stock panel.
func Default() (*Program, error) {
	return Embedded(DefaultName)
}

// Embedded returns the embedded program with the given name.
func Embedded(name string) (*Program, error) {
	data, err := programs.ReadFile("programs/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("regprog: no embedded program %q: %w", name, err)
	}
	return Parse(data)
}

// Load reads a program from a YAML file on disk.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML program.
func Parse(data []byte) (*Program, error) {
	var f programFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("regprog: %w", err)
	}
	if f.Name == "" {
		return nil, errors.New("regprog: program has no name")
	}
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("regprog: program %s has no entries", f.Name)
	}

	p := &Program{
		Name:           f.Name,
		Version:        f.Version,
		Entries:        make([]Entry, 0, len(f.Entries)),
		SleepOut:       CmdSleepOut,
		SleepOutDelay:  DefaultSleepOutWait,
		DisplayOn:      CmdDisplayOn,
		DisplayOnDelay: DefaultDisplayOnWait,
	}

	var err error
	if f.SleepOut != nil {
		if p.SleepOut, err = toByte(*f.SleepOut, "sleep_out"); err != nil {
			return nil, err
		}
	}
	if f.DisplayOn != nil {
		if p.DisplayOn, err = toByte(*f.DisplayOn, "display_on"); err != nil {
			return nil, err
		}
	}
	if f.SleepOutDelayMs != nil {
		if p.SleepOutDelay, err = toDelay(*f.SleepOutDelayMs, "sleep_out_delay_ms"); err != nil {
			return nil, err
		}
	}
	if f.DisplayOnDelayMs != nil {
		if p.DisplayOnDelay, err = toDelay(*f.DisplayOnDelayMs, "display_on_delay_ms"); err != nil {
			return nil, err
		}
	}

	for i, ef := range f.Entries {
		if ef.Cmd == nil {
			return nil, fmt.Errorf("regprog: entry %d has no cmd", i)
		}
		cmd, err := toByte(*ef.Cmd, fmt.Sprintf("entry %d cmd", i))
		if err != nil {
			return nil, err
		}
		e := Entry{Cmd: cmd, Data: make([]byte, len(ef.Data))}
		for j, v := range ef.Data {
			if e.Data[j], err = toByte(v, fmt.Sprintf("entry %d (cmd 0x%02X) data[%d]", i, cmd, j)); err != nil {
				return nil, err
			}
		}
		p.Entries = append(p.Entries, e)
	}
	return p, nil
}

func toByte(v int, what string) (byte, error) {
	if v < 0 || v > 0xFF {
		return 0, fmt.Errorf("regprog: %s = %d is not a byte", what, v)
	}
	return byte(v), nil
}

func toDelay(ms int, what string) (time.Duration, error) {
	if ms < 0 {
		return 0, fmt.Errorf("regprog: %s = %d is negative", what, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Units returns the full transaction stream, sleep-out and display-on
// included.
func (p *Program) Units() []sercodec.Unit {
	out := make([]sercodec.Unit, 0, p.Transactions())
	for _, e := range p.Entries {
		out = append(out, e.Units()...)
	}
	return append(out, sercodec.Command(p.SleepOut), sercodec.Command(p.DisplayOn))
}

// Transactions is the number of serial transactions Run performs.
func (p *Program) Transactions() int {
	n := 2
	for _, e := range p.Entries {
		n += 1 + len(e.Data)
	}
	return n
}

// Digest identifies the encoded stream; it changes with any byte of the
// table or the trailing commands.
func (p *Program) Digest() string {
	h := sha256.New()
	var buf []byte
	for _, u := range p.Units() {
		buf = sercodec.AppendWord(buf[:0], u)
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Run sends the program over s. The first failed send aborts the run; the
// panel is then in an unknown state and needs a hardware reset before the
// program can be retried.
func (p *Program) Run(s spi9.Sender, clock clockwork.Clock) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for i, e := range p.Entries {
		for _, u := range e.Units() {
			if err := s.Send(u); err != nil {
				return fmt.Errorf("%w: entry %d (cmd 0x%02X) at %v: %w", ErrProgramAborted, i, e.Cmd, u, err)
			}
		}
	}

	if err := s.Send(sercodec.Command(p.SleepOut)); err != nil {
		return fmt.Errorf("%w: sleep-out: %w", ErrProgramAborted, err)
	}
	clock.Sleep(p.SleepOutDelay)

	if err := s.Send(sercodec.Command(p.DisplayOn)); err != nil {
		return fmt.Errorf("%w: display-on: %w", ErrProgramAborted, err)
	}
	clock.Sleep(p.DisplayOnDelay)
	return nil
}
