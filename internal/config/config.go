package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"rgblcd/internal/rgb"
	"rgblcd/internal/spi9"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SerialConfig describes the 9-bit register bus.
type SerialConfig struct {
	// Bus is the periph.io SPI port name, e.g. "SPI0.0". Empty selects the
	// first port found.
	Bus string `yaml:"bus" json:"bus"`
	// ClockHz is the serial clock; the controller allows up to 10MHz.
	ClockHz int64 `yaml:"clock_hz" json:"clock_hz"`
	// Mode is the SPI mode (0-3).
	Mode        int `yaml:"mode" json:"mode"`
	QueueDepth  int `yaml:"queue_depth" json:"queue_depth"`
	MaxTransfer int `yaml:"max_transfer" json:"max_transfer"`
	// Timeout bounds one transaction, e.g. "1s".
	Timeout string `yaml:"timeout" json:"timeout"`
	// CS is an optional GPIO driven as chip select by software.
	CS string `yaml:"cs,omitempty" json:"cs,omitempty"`
	// CLK and MOSI are only used by the simulated board; real ports report
	// their own pins.
	CLK  string `yaml:"clk" json:"clk"`
	MOSI string `yaml:"mosi" json:"mosi"`
}

// PinsConfig names the two software-driven pins.
type PinsConfig struct {
	// Reset is driven as a GPIO during the serial phase and becomes VSYNC
	// afterwards. It must match rgb.pins.vsync.
	Reset              string `yaml:"reset" json:"reset"`
	Backlight          string `yaml:"backlight" json:"backlight"`
	BacklightActiveLow bool   `yaml:"backlight_active_low" json:"backlight_active_low"`
}

// PorchConfig is one axis of the sync timing.
type PorchConfig struct {
	PulseWidth int `yaml:"pulse_width" json:"pulse_width"`
	BackPorch  int `yaml:"back_porch" json:"back_porch"`
	FrontPorch int `yaml:"front_porch" json:"front_porch"`
}

// RGBPinsConfig names the parallel interface wires.
type RGBPinsConfig struct {
	PCLK  string   `yaml:"pclk" json:"pclk"`
	HSync string   `yaml:"hsync" json:"hsync"`
	VSync string   `yaml:"vsync" json:"vsync"`
	DE    string   `yaml:"de" json:"de"`
	Disp  string   `yaml:"disp,omitempty" json:"disp,omitempty"`
	Data  []string `yaml:"data" json:"data"`
}

// RGBConfig describes the parallel pixel interface.
type RGBConfig struct {
	// Device is the frame buffer device generating the timing.
	Device     string      `yaml:"device" json:"device"`
	PixelClock int64       `yaml:"pclk_hz" json:"pclk_hz"`
	HRes       int         `yaml:"h_res" json:"h_res"`
	VRes       int         `yaml:"v_res" json:"v_res"`
	HSync      PorchConfig `yaml:"hsync" json:"hsync"`
	VSync      PorchConfig `yaml:"vsync" json:"vsync"`
	DataWidth  int         `yaml:"data_width" json:"data_width"`
	Placement  string      `yaml:"fb_placement" json:"fb_placement"`
	TransAlign int         `yaml:"trans_align" json:"trans_align"`
	// SyncFunc and HSyncFunc name the pin functions of VSYNC and HSYNC.
	SyncFunc  string        `yaml:"sync_func,omitempty" json:"sync_func,omitempty"`
	HSyncFunc string        `yaml:"hsync_func,omitempty" json:"hsync_func,omitempty"`
	Pins      RGBPinsConfig `yaml:"pins" json:"pins"`
}

// ProgramConfig selects the register program.
type ProgramConfig struct {
	// Path to a program YAML file. Empty uses the embedded program.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// PatternConfig controls what is drawn after bring-up.
type PatternConfig struct {
	// Initial is drawn right after bring-up.
	Initial string `yaml:"initial" json:"initial"`
	// Cron, if set, steps through Cycle on this schedule for soak testing
	// (e.g. "*/5 * * * *").
	Cron  string   `yaml:"cron,omitempty" json:"cron,omitempty"`
	Cycle []string `yaml:"cycle,omitempty" json:"cycle,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Serial  SerialConfig  `yaml:"serial" json:"serial"`
	Pins    PinsConfig    `yaml:"pins" json:"pins"`
	RGB     RGBConfig     `yaml:"rgb" json:"rgb"`
	Program ProgramConfig `yaml:"program" json:"program"`
	Pattern PatternConfig `yaml:"pattern" json:"pattern"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration for the
// reference 480x480 board.
func DefaultConfig() *Config {
	panel := rgb.DefaultConfig()
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Serial: SerialConfig{
			ClockHz:     int64(spi9.DefaultOpts.Freq / physic.Hertz),
			Mode:        0,
			QueueDepth:  spi9.DefaultOpts.QueueDepth,
			MaxTransfer: spi9.DefaultOpts.MaxTransfer,
			Timeout:     spi9.DefaultOpts.Timeout.String(),
			CS:          "GPIO38",
			CLK:         "GPIO45",
			MOSI:        "GPIO48",
		},
		Pins: PinsConfig{
			Reset:     "GPIO41",
			Backlight: "GPIO5",
		},
		RGB: RGBConfig{
			Device:     "/dev/fb0",
			PixelClock: int64(panel.Timing.PixelClock / physic.Hertz),
			HRes:       panel.Timing.HRes,
			VRes:       panel.Timing.VRes,
			HSync:      porchFrom(panel.Timing.HSync),
			VSync:      porchFrom(panel.Timing.VSync),
			DataWidth:  panel.BusWidth,
			Placement:  panel.Placement.String(),
			TransAlign: panel.TransAlign,
			Pins: RGBPinsConfig{
				PCLK:  panel.Pins.PCLK,
				HSync: panel.Pins.HSync,
				VSync: panel.Pins.VSync,
				DE:    panel.Pins.DE,
				Data:  append([]string(nil), panel.Pins.Data...),
			},
		},
		Pattern: PatternConfig{
			Initial: "red",
			Cycle:   []string{"red", "green", "blue", "white", "bars"},
		},
		BasicAuth: nil,
	}
}

func porchFrom(p rgb.Porch) PorchConfig {
	return PorchConfig{PulseWidth: p.PulseWidth, BackPorch: p.BackPorch, FrontPorch: p.FrontPorch}
}

func (p PorchConfig) porch() rgb.Porch {
	return rgb.Porch{PulseWidth: p.PulseWidth, BackPorch: p.BackPorch, FrontPorch: p.FrontPorch}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	if c.Serial.ClockHz <= 0 {
		c.Serial.ClockHz = d.Serial.ClockHz
	}
	if c.Serial.QueueDepth <= 0 {
		c.Serial.QueueDepth = d.Serial.QueueDepth
	}
	if c.Serial.MaxTransfer <= 0 {
		c.Serial.MaxTransfer = d.Serial.MaxTransfer
	}
	if c.Serial.Timeout == "" {
		c.Serial.Timeout = d.Serial.Timeout
	}

	if c.Pins.Reset == "" {
		c.Pins.Reset = d.Pins.Reset
	}
	if c.Pins.Backlight == "" {
		c.Pins.Backlight = d.Pins.Backlight
	}

	r := &c.RGB
	if r.Device == "" {
		r.Device = d.RGB.Device
	}
	if r.PixelClock <= 0 {
		r.PixelClock = d.RGB.PixelClock
	}
	if r.HRes <= 0 {
		r.HRes = d.RGB.HRes
	}
	if r.VRes <= 0 {
		r.VRes = d.RGB.VRes
	}
	if r.HSync == (PorchConfig{}) {
		r.HSync = d.RGB.HSync
	}
	if r.VSync == (PorchConfig{}) {
		r.VSync = d.RGB.VSync
	}
	if r.DataWidth <= 0 {
		r.DataWidth = d.RGB.DataWidth
	}
	if r.Placement == "" {
		r.Placement = d.RGB.Placement
	}
	if r.TransAlign <= 0 {
		r.TransAlign = d.RGB.TransAlign
	}
	if r.Pins.PCLK == "" && r.Pins.HSync == "" && r.Pins.VSync == "" && r.Pins.DE == "" && len(r.Pins.Data) == 0 {
		r.Pins = d.RGB.Pins
	}

	if c.Pattern.Initial == "" {
		c.Pattern.Initial = d.Pattern.Initial
	}
	if len(c.Pattern.Cycle) == 0 {
		c.Pattern.Cycle = d.Pattern.Cycle
	}
}

// SerialOpts converts the serial section. The chip select pin is resolved
// by the board.
func (c *Config) SerialOpts() (spi9.Opts, error) {
	s := c.Serial
	if s.Mode < 0 || s.Mode > 3 {
		return spi9.Opts{}, fmt.Errorf("config: serial.mode %d out of range", s.Mode)
	}
	timeout, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return spi9.Opts{}, fmt.Errorf("config: serial.timeout: %w", err)
	}
	return spi9.Opts{
		Freq:        physic.Frequency(s.ClockHz) * physic.Hertz,
		Mode:        spi.Mode(s.Mode),
		QueueDepth:  s.QueueDepth,
		MaxTransfer: s.MaxTransfer,
		Timeout:     timeout,
	}, nil
}

// PanelConfig converts and validates the rgb section.
func (c *Config) PanelConfig() (rgb.Config, error) {
	r := c.RGB
	placement, err := rgb.ParsePlacement(r.Placement)
	if err != nil {
		return rgb.Config{}, err
	}
	cfg := rgb.Config{
		Timing: rgb.Timing{
			PixelClock: physic.Frequency(r.PixelClock) * physic.Hertz,
			HRes:       r.HRes,
			VRes:       r.VRes,
			HSync:      r.HSync.porch(),
			VSync:      r.VSync.porch(),
		},
		BusWidth:   r.DataWidth,
		Placement:  placement,
		TransAlign: r.TransAlign,
		Pins: rgb.Pins{
			PCLK:  r.Pins.PCLK,
			HSync: r.Pins.HSync,
			VSync: r.Pins.VSync,
			DE:    r.Pins.DE,
			Disp:  r.Pins.Disp,
			Data:  append([]string(nil), r.Pins.Data...),
		},
	}
	if err := cfg.Validate(); err != nil {
		return rgb.Config{}, err
	}
	if c.Pins.Reset != r.Pins.VSync {
		return rgb.Config{}, fmt.Errorf("%w: reset pin %s must be the vsync pin %s", rgb.ErrConfig, c.Pins.Reset, r.Pins.VSync)
	}
	return cfg, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".rgblcd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
