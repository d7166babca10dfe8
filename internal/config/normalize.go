package config

import (
	"time"

	"github.com/mklimuk/eeprom/gpio"
	e25x "github.com/mklimuk/eeprom/memory/25xx"
)

const DefaultSpeedHz = 2_000_000

// Normalize applies defaults. It mutates cfg and must be called only after
// Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// canonical variant name
	if v, err := e25x.VariantByName(cfg.Variant); err == nil {
		cfg.Variant = v.Name
	}

	if cfg.SPI.Driver == "" {
		cfg.SPI.Driver = SPIDriverSpidev
	}
	if cfg.SPI.SpeedHz == 0 {
		cfg.SPI.SpeedHz = DefaultSpeedHz
	}

	// unwired write-protect and hold are tied inactive on the board
	for _, p := range []*PinConfig{&cfg.Pins.WP, &cfg.Pins.Hold} {
		if p.Driver == "" {
			p.Driver = PinDriverNone
		}
	}

	if cfg.UsesExpander() {
		if cfg.I2C.Driver == "" {
			cfg.I2C.Driver = I2CDriverGeneric
		}
		if cfg.I2C.Address == 0 {
			cfg.I2C.Address = gpio.DefaultMCP23017Address
		}
	}
}

// Options turns the busy policy into driver options.
func (b BusyConfig) Options() []e25x.Opt {
	var opts []e25x.Opt
	if b.TimeoutMs > 0 {
		opts = append(opts, e25x.WithBusyTimeout(time.Duration(b.TimeoutMs)*time.Millisecond))
	}
	if b.PollIntervalUs > 0 {
		opts = append(opts, e25x.WithPollInterval(time.Duration(b.PollIntervalUs)*time.Microsecond))
	}
	if b.MaxPolls > 0 {
		opts = append(opts, e25x.WithMaxPolls(b.MaxPolls))
	}
	return opts
}
