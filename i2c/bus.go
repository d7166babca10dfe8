package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/eeprom"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ eeprom.I2CBus = &GenericBus{}

// GenericBus is a host I2C bus (/dev/i2c-N and friends) seen through periph.
type GenericBus struct {
	bus i2c.Bus
}

type BusOpt func(*busConfig)

type busConfig struct {
	speed physic.Frequency
}

// WithSpeed sets the bus clock. Not every host driver supports changing it.
func WithSpeed(f physic.Frequency) BusOpt {
	return func(c *busConfig) {
		c.speed = f
	}
}

// NewGenericBus opens the named bus; "" opens the first one registered.
func NewGenericBus(dev string, opts ...BusOpt) (*GenericBus, error) {
	cfg := busConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	if cfg.speed > 0 {
		if err := bus.SetSpeed(cfg.speed); err != nil {
			_ = bus.Close()
			return nil, fmt.Errorf("could not set i2c bus speed to %s: %w", cfg.speed, err)
		}
	}
	return NewBus(bus), nil
}

// NewBus wraps an open periph bus.
func NewBus(bus i2c.Bus) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// Release is a no-op: the kernel driver never leaves the bus claimed.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	if c, ok := b.bus.(i2c.BusCloser); ok {
		return c.Close()
	}
	return nil
}
