package gpio

import (
	"context"
	"fmt"

	"github.com/mklimuk/eeprom"
	"gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

var _ eeprom.Signal = &DigitalPin{}

// DigitalPin drives a header pin of a gobot platform adaptor. It is active-low
// unless built with DigitalActiveHigh.
type DigitalPin struct {
	writer     gpio.DigitalWriter
	id         string
	activeHigh bool
}

type DigitalPinOpt func(*DigitalPin)

func DigitalActiveHigh() DigitalPinOpt {
	return func(p *DigitalPin) {
		p.activeHigh = true
	}
}

func NewDigitalPin(w gpio.DigitalWriter, id string, opts ...DigitalPinOpt) *DigitalPin {
	p := &DigitalPin{writer: w, id: id}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NanoPi connects the NanoPi NEO adaptor whose header pins back DigitalPins.
func NanoPi() (*nanopi.Adaptor, error) {
	adaptor := nanopi.NewNeoAdaptor()
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("nanopi adaptor connect error: %w", err)
	}
	return adaptor, nil
}

func (p *DigitalPin) Assert(ctx context.Context) error {
	return p.write(p.activeHigh)
}

func (p *DigitalPin) Deassert(ctx context.Context) error {
	return p.write(!p.activeHigh)
}

func (p *DigitalPin) write(high bool) error {
	var val byte
	if high {
		val = 1
	}
	if err := p.writer.DigitalWrite(p.id, val); err != nil {
		return fmt.Errorf("could not write pin %s: %w", p.id, err)
	}
	return nil
}
