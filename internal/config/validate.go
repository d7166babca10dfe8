package config

import (
	"fmt"

	e25x "github.com/mklimuk/eeprom/memory/25xx"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
// Empty drivers are accepted; Normalize fills them in.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Variant == "" {
		return fmt.Errorf("variant is required")
	}
	if _, err := e25x.VariantByName(cfg.Variant); err != nil {
		return err
	}

	// ---- SPI ----

	switch cfg.SPI.Driver {
	case "", SPIDriverSpidev, SPIDriverFTDI:
	default:
		return fmt.Errorf("spi: unknown driver %q", cfg.SPI.Driver)
	}
	if cfg.SPI.SpeedHz < 0 {
		return fmt.Errorf("spi: speed_hz must not be negative")
	}

	// ---- CONTROL LINES ----

	if d := cfg.Pins.CS.Driver; d == "" || d == PinDriverNone {
		return fmt.Errorf("pins.cs: a chip-select line is required")
	}

	// key = driver | line
	owner := make(map[string]string)

	for _, np := range cfg.Pins.All() {
		p := np.Pin
		var key string
		switch p.Driver {
		case "", PinDriverNone:
			continue
		case PinDriverGPIO, PinDriverNanoPi:
			if p.Name == "" {
				return fmt.Errorf("pins.%s: %s pin needs a name", np.Name, p.Driver)
			}
			key = fmt.Sprintf("%s|%s", p.Driver, p.Name)
		case PinDriverFTDI:
			if cfg.SPI.Driver != SPIDriverFTDI {
				return fmt.Errorf("pins.%s: ftdi lines require the ftdi spi driver", np.Name)
			}
			if p.Pin < 3 || p.Pin > 7 {
				return fmt.Errorf("pins.%s: ftdi line D%d is not usable, pick D3..D7", np.Name, p.Pin)
			}
			key = fmt.Sprintf("%s|%d", p.Driver, p.Pin)
		case PinDriverMCP23017:
			if p.Pin < 0 || p.Pin > 7 {
				return fmt.Errorf("pins.%s: mcp23017 pin %d out of range 0..7", np.Name, p.Pin)
			}
			key = fmt.Sprintf("%s|%d", p.Driver, p.Pin)
		case PinDriverMCP2221:
			if p.Pin < 0 || p.Pin > 3 {
				return fmt.Errorf("pins.%s: mcp2221 GP%d out of range 0..3", np.Name, p.Pin)
			}
			key = fmt.Sprintf("%s|%d", p.Driver, p.Pin)
		default:
			return fmt.Errorf("pins.%s: unknown driver %q", np.Name, p.Driver)
		}

		if prev, exists := owner[key]; exists {
			return fmt.Errorf("pins.%s and pins.%s share the same line (%s)", prev, np.Name, key)
		}
		owner[key] = np.Name
	}

	// ---- I2C ----

	switch cfg.I2C.Driver {
	case "", I2CDriverGeneric, I2CDriverMCP2221:
	default:
		return fmt.Errorf("i2c: unknown driver %q", cfg.I2C.Driver)
	}
	if cfg.I2C.Address > 0x7F {
		return fmt.Errorf("i2c: address %#x is not a 7 bit address", cfg.I2C.Address)
	}

	// ---- BUSY POLICY ----

	if cfg.Busy.TimeoutMs < 0 || cfg.Busy.PollIntervalUs < 0 || cfg.Busy.MaxPolls < 0 {
		return fmt.Errorf("busy: values must not be negative")
	}

	return nil
}
