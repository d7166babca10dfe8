package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/eeprom"
)

type registry int

const DefaultMCP23017Address = 0x21

// Registries
const (
	IODIRA registry = iota
	IOPOLA
	GPINTENA
	DEFVALA
	INTCONA
	IOCONA
	GPPUA
	INTFA
	INTCAPA
	GPIOA
	OLATA
	IODIRB
	IOPOLB
	GPINTENB
	DEFVALB
	INTCONB
	IOCONB
	GPPUB
	INTFB
	INTCAPB
	GPIOB
	OLATB
)

// BankAddr maps registries to addresses for IOCON.BANK=0 (interleaved, power-on
// default) and IOCON.BANK=1 (split by port).
var BankAddr = []map[registry]byte{
	{
		IODIRA:   0x00,
		IOPOLA:   0x02,
		GPINTENA: 0x04,
		DEFVALA:  0x06,
		INTCONA:  0x08,
		IOCONA:   0x0A,
		GPPUA:    0x0C,
		INTFA:    0x0E,
		INTCAPA:  0x10,
		GPIOA:    0x12,
		OLATA:    0x14,
		IODIRB:   0x01,
		IOPOLB:   0x03,
		GPINTENB: 0x05,
		DEFVALB:  0x07,
		INTCONB:  0x09,
		IOCONB:   0x0B,
		GPPUB:    0x0D,
		INTFB:    0x0F,
		INTCAPB:  0x11,
		GPIOB:    0x13,
		OLATB:    0x15,
	},
	{
		IODIRA:   0x00,
		IOPOLA:   0x01,
		GPINTENA: 0x02,
		DEFVALA:  0x03,
		INTCONA:  0x04,
		IOCONA:   0x05,
		GPPUA:    0x06,
		INTFA:    0x07,
		INTCAPA:  0x08,
		GPIOA:    0x09,
		OLATA:    0x0A,
		IODIRB:   0x10,
		IOPOLB:   0x11,
		GPINTENB: 0x12,
		DEFVALB:  0x13,
		INTCONB:  0x14,
		IOCONB:   0x15,
		GPPUB:    0x16,
		INTFB:    0x17,
		INTCAPB:  0x18,
		GPIOB:    0x19,
		OLATB:    0x1A,
	},
}

// MCP23017 is a 16 bit I2C port expander. Port A is meant to drive the memory
// control lines: call InitA with the direction mask, then take Pin(n) signals.
// The output latch of port A is cached so a single pin can change without a
// read-modify-write on the bus.
type MCP23017 struct {
	mx         sync.Mutex
	transport  eeprom.I2CBus
	bank       int
	address    byte
	retryLimit int
	latchA     byte
}

type MCP23017Opt func(*MCP23017)

// WithRetryLimit sets how many times a command is attempted while the bus
// reports ErrBusBusy.
func WithRetryLimit(n int) MCP23017Opt {
	return func(m *MCP23017) {
		m.retryLimit = n
	}
}

func NewMCP23017(bus eeprom.I2CBus, address byte, opts ...MCP23017Opt) *MCP23017 {
	m := &MCP23017{retryLimit: 1, transport: bus, address: address, latchA: 0xFF}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// retry runs fn until it succeeds, fails with something other than a busy bus
// or the retry limit is reached. The bus is released after every busy attempt.
func (m *MCP23017) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, eeprom.ErrBusBusy) {
			return fmt.Errorf("could not %s: %w", what, err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("could not %s (retry limit reached): %w", what, err)
}

func (m *MCP23017) writeRegistry(ctx context.Context, what string, reg registry, value byte) error {
	return m.retry(ctx, what, func() error {
		m.mx.Lock()
		defer m.mx.Unlock()
		return m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg], value})
	})
}

func (m *MCP23017) readRegistry(ctx context.Context, what string, reg registry) (byte, error) {
	var res byte
	err := m.retry(ctx, what, func() error {
		m.mx.Lock()
		defer m.mx.Unlock()
		err := m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg]})
		if err != nil {
			return fmt.Errorf("could not set I/O registry address: %w", err)
		}
		buf := make([]byte, 1)
		err = m.transport.ReadFromAddr(ctx, m.address, buf)
		if err != nil {
			return fmt.Errorf("could not read gpio data: %w", err)
		}
		res = buf[0]
		return nil
	})
	return res, err
}

// InitA sets IODIR registry to inout on I/O pool A. Outputs start from the
// cached latch, all high unless WriteA was called before.
func (m *MCP23017) InitA(ctx context.Context, inout byte) error {
	if inout != 0xFF {
		if err := m.WriteA(ctx, m.latch()); err != nil {
			return err
		}
	}
	return m.writeRegistry(ctx, "initialize gpio A set", IODIRA, inout)
}

// InitB sets IODIR registry to inout on I/O pool B
func (m *MCP23017) InitB(ctx context.Context, inout byte) error {
	return m.writeRegistry(ctx, "initialize gpio B set", IODIRB, inout)
}

// PullUpA sets up pull up resistors on set A
func (m *MCP23017) PullUpA(ctx context.Context, settings byte) error {
	return m.writeRegistry(ctx, "set pull-up on gpio A set", GPPUA, settings)
}

// PullUpB sets up pull up resistors on set B
func (m *MCP23017) PullUpB(ctx context.Context, settings byte) error {
	return m.writeRegistry(ctx, "set pull-up on gpio B set", GPPUB, settings)
}

func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	res := make([]byte, 2)
	var err error
	res[0], err = m.ReadA(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read gpio set A: %w", err)
	}
	res[1], err = m.ReadB(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read gpio set B: %w", err)
	}
	return res, nil
}

// ReadA reads gpio A set values
func (m *MCP23017) ReadA(ctx context.Context) (byte, error) {
	return m.readRegistry(ctx, "read gpio A set", GPIOA)
}

// ReadB reads gpio B set values
func (m *MCP23017) ReadB(ctx context.Context) (byte, error) {
	return m.readRegistry(ctx, "read gpio B set", GPIOB)
}

// WriteA sets the output latch of set A.
func (m *MCP23017) WriteA(ctx context.Context, value byte) error {
	err := m.writeRegistry(ctx, "write gpio A latch", OLATA, value)
	if err != nil {
		return err
	}
	m.mx.Lock()
	m.latchA = value
	m.mx.Unlock()
	return nil
}

func (m *MCP23017) latch() byte {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.latchA
}

// ReadSettings reads contents of the IOCON registry. Both ports share it.
func (m *MCP23017) ReadSettings(ctx context.Context) (byte, error) {
	return m.readRegistry(ctx, "read IOCON", IOCONA)
}

// WriteSettings writes the IOCON registry. Bit 7 (BANK) switches the register
// map used by later calls.
func (m *MCP23017) WriteSettings(ctx context.Context, settings byte) error {
	err := m.writeRegistry(ctx, "write IOCON", IOCONA, settings)
	if err != nil {
		return err
	}
	m.mx.Lock()
	m.bank = int(settings >> 7)
	m.mx.Unlock()
	return nil
}

// Pin returns output n (0..7) of set A as an active-low signal. The pin
// must be configured as output with InitA.
func (m *MCP23017) Pin(n int, opts ...ExpanderPinOpt) (*ExpanderPin, error) {
	if n < 0 || n > 7 {
		return nil, fmt.Errorf("mcp23017 has no pin A%d", n)
	}
	p := &ExpanderPin{exp: m, mask: 1 << n}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

var _ eeprom.Signal = &ExpanderPin{}

type ExpanderPin struct {
	exp        *MCP23017
	mask       byte
	activeHigh bool
}

type ExpanderPinOpt func(*ExpanderPin)

func ExpanderActiveHigh() ExpanderPinOpt {
	return func(p *ExpanderPin) {
		p.activeHigh = true
	}
}

func (p *ExpanderPin) Assert(ctx context.Context) error {
	return p.set(ctx, p.activeHigh)
}

func (p *ExpanderPin) Deassert(ctx context.Context) error {
	return p.set(ctx, !p.activeHigh)
}

func (p *ExpanderPin) set(ctx context.Context, high bool) error {
	latch := p.exp.latch()
	next := latch &^ p.mask
	if high {
		next |= p.mask
	}
	if next == latch {
		return nil
	}
	return p.exp.WriteA(ctx, next)
}
