package board

import (
	"strconv"
	"strings"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	"rgblcd/internal/bringup"
	"rgblcd/internal/config"
	appLog "rgblcd/internal/log"
	"rgblcd/internal/rgb"
)

// SimPort is a recording SPI port reporting the configured bus pins.
type SimPort struct {
	spitest.Record
	Clk, Mosi gpio.PinIO
}

func (p *SimPort) CLK() gpio.PinOut  { return p.Clk }
func (p *SimPort) MOSI() gpio.PinOut { return p.Mosi }
func (p *SimPort) MISO() gpio.PinIn  { return gpio.INVALID }
func (p *SimPort) CS() gpio.PinOut   { return gpio.INVALID }

func (p *SimPort) String() string { return "sim-spi" }

// simPin returns a fake pin named like the real one.
func simPin(name string) *gpiotest.Pin {
	num := -1
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "GPIO")); err == nil {
		num = n
	}
	return &gpiotest.Pin{N: name, Num: num, Fn: "Out/Low"}
}

func simBoard(cfg *config.Config) (*bringup.Board, gpio.PinOut) {
	port := &SimPort{}
	if cfg.Serial.CLK != "" {
		port.Clk = simPin(cfg.Serial.CLK)
	}
	if cfg.Serial.MOSI != "" {
		port.Mosi = simPin(cfg.Serial.MOSI)
	}
	var cs gpio.PinOut
	if cfg.Serial.CS != "" {
		cs = simPin(cfg.Serial.CS)
	}

	appLog.Info("simulated board ready",
		"backlight", cfg.Pins.Backlight,
		"reset", cfg.Pins.Reset,
	)
	return &bringup.Board{
		Backlight: simPin(cfg.Pins.Backlight),
		Reset:     simPin(cfg.Pins.Reset),
		HSync:     simPin(cfg.RGB.Pins.HSync),
		SPI:       port,
		Engine:    rgb.NewSimEngine(),
	}, cs
}
