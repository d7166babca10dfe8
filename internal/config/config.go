// Package config describes how a memory chip is wired to the host: which SPI
// master clocks it and what drives its chip-select, write-protect and hold
// lines. It is read from YAML and may be overridden by command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	SPIDriverSpidev = "spidev"
	SPIDriverFTDI   = "ftdi"
)

const (
	PinDriverNone     = "none"
	PinDriverGPIO     = "gpio"
	PinDriverFTDI     = "ftdi"
	PinDriverMCP23017 = "mcp23017"
	PinDriverMCP2221  = "mcp2221"
	PinDriverNanoPi   = "nanopi"
)

const (
	I2CDriverGeneric = "generic"
	I2CDriverMCP2221 = "mcp2221"
)

type Config struct {
	Variant string     `yaml:"variant"`
	SPI     SPIConfig  `yaml:"spi"`
	Pins    PinsConfig `yaml:"pins"`
	I2C     I2CConfig  `yaml:"i2c"`
	Busy    BusyConfig `yaml:"busy"`
}

// ---- SPI ----

type SPIConfig struct {
	Driver  string `yaml:"driver"`
	Port    string `yaml:"port"` // spidev port name, "" for the first one
	SpeedHz int64  `yaml:"speed_hz"`
}

// ---- CONTROL LINES ----

type PinsConfig struct {
	CS   PinConfig `yaml:"cs"`
	WP   PinConfig `yaml:"wp"`
	Hold PinConfig `yaml:"hold"`
}

type PinConfig struct {
	Driver     string `yaml:"driver"`
	Name       string `yaml:"name"` // gpio and nanopi pins
	Pin        int    `yaml:"pin"`  // expander, bridge or adapter line number
	ActiveHigh bool   `yaml:"active_high"`
}

// ---- I2C (expander transport) ----

type I2CConfig struct {
	Driver  string `yaml:"driver"`
	Device  string `yaml:"device"` // generic bus name, "" for the first one
	Address uint8  `yaml:"address"`
}

// ---- BUSY POLICY ----

type BusyConfig struct {
	TimeoutMs      int `yaml:"timeout_ms"`
	PollIntervalUs int `yaml:"poll_interval_us"`
	MaxPolls       int `yaml:"max_polls"`
}

// Load reads a YAML board description. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	return cfg, nil
}

// All lists the control lines with their names, in power-up order.
func (p PinsConfig) All() []NamedPin {
	return []NamedPin{
		{Name: "cs", Pin: p.CS},
		{Name: "wp", Pin: p.WP},
		{Name: "hold", Pin: p.Hold},
	}
}

type NamedPin struct {
	Name string
	Pin  PinConfig
}

// UsesExpander reports whether any line sits on an MCP23017.
func (c *Config) UsesExpander() bool {
	for _, p := range c.Pins.All() {
		if p.Pin.Driver == PinDriverMCP23017 {
			return true
		}
	}
	return false
}
