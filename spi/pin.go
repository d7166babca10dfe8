package spi

import (
	"context"
	"fmt"

	"github.com/mklimuk/eeprom"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var _ eeprom.Signal = &Pin{}

// Pin drives a periph output pin as a logical signal. The 25xx control lines
// are active-low, which is the default.
type Pin struct {
	out    gpio.PinOut
	active gpio.Level
}

type PinOpt func(*Pin)

func ActiveHigh() PinOpt {
	return func(p *Pin) {
		p.active = gpio.High
	}
}

func NewPin(out gpio.PinOut, opts ...PinOpt) *Pin {
	p := &Pin{out: out, active: gpio.Low}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PinByName looks the pin up in the periph registry ("GPIO22", "P1_15", ...).
func PinByName(name string, opts ...PinOpt) (*Pin, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return NewPin(p, opts...), nil
}

func (p *Pin) Assert(ctx context.Context) error {
	return p.set(p.active)
}

func (p *Pin) Deassert(ctx context.Context) error {
	return p.set(!p.active)
}

func (p *Pin) set(l gpio.Level) error {
	if err := p.out.Out(l); err != nil {
		return fmt.Errorf("could not drive %s %s: %w", p.out, l, err)
	}
	return nil
}

func (p *Pin) String() string {
	return p.out.String()
}
