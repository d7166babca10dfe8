package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/gpio"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/internal/config"
	e25x "github.com/mklimuk/eeprom/memory/25xx"
	"github.com/mklimuk/eeprom/spi"
)

// tied stands for a line hardwired to its inactive level on the board.
type tied struct{}

func (tied) Assert(ctx context.Context) error   { return nil }
func (tied) Deassert(ctx context.Context) error { return nil }

// board is an opened memory with everything it depends on.
type board struct {
	storage *e25x.Storage
	closers []func() error
}

func (b *board) Close(ctx context.Context) error {
	var errs []error
	if b.storage != nil {
		errs = append(errs, b.storage.Device().Close(ctx))
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// loadConfig reads --config when given and applies the flag overrides on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if v := c.String("variant"); v != "" {
		cfg.Variant = v
	}
	switch s := c.String("spi"); s {
	case "":
	case config.SPIDriverFTDI:
		cfg.SPI.Driver = config.SPIDriverFTDI
	default:
		cfg.SPI.Driver = config.SPIDriverSpidev
		cfg.SPI.Port = s
	}
	if speed := c.Int64("speed"); speed > 0 {
		cfg.SPI.SpeedHz = speed
	}
	pins := []struct {
		flag string
		pin  *config.PinConfig
	}{
		{"cs", &cfg.Pins.CS},
		{"wp", &cfg.Pins.WP},
		{"hold", &cfg.Pins.Hold},
	}
	for _, p := range pins {
		spec := c.String(p.flag)
		if spec == "" {
			continue
		}
		parsed, err := parsePinSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", p.flag, err)
		}
		*p.pin = parsed
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// parsePinSpec reads driver:line[:high], or none.
func parsePinSpec(spec string) (config.PinConfig, error) {
	parts := strings.Split(spec, ":")
	p := config.PinConfig{Driver: strings.ToLower(parts[0])}
	if p.Driver == config.PinDriverNone {
		if len(parts) > 1 {
			return p, fmt.Errorf("pin spec %q: none takes no line", spec)
		}
		return p, nil
	}
	if len(parts) < 2 || len(parts) > 3 || parts[1] == "" {
		return p, fmt.Errorf("pin spec %q: expected driver:line[:high]", spec)
	}
	if len(parts) == 3 {
		switch strings.ToLower(parts[2]) {
		case "high":
			p.ActiveHigh = true
		case "low":
		default:
			return p, fmt.Errorf("pin spec %q: unknown polarity %q", spec, parts[2])
		}
	}
	switch p.Driver {
	case config.PinDriverGPIO, config.PinDriverNanoPi:
		p.Name = parts[1]
	default:
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(parts[1]), "D"))
		if err != nil {
			return p, fmt.Errorf("pin spec %q: line must be a number: %w", spec, err)
		}
		p.Pin = n
	}
	return p, nil
}

// openBoard wires the channel and control lines described by cfg and runs the
// memory power-up sequence.
func openBoard(ctx context.Context, cfg *config.Config) (*board, error) {
	variant, err := e25x.VariantByName(cfg.Variant)
	if err != nil {
		return nil, err
	}
	b := &board{}
	if err := b.open(ctx, cfg, variant); err != nil {
		if cerr := b.Close(ctx); cerr != nil {
			slog.Debug("cleanup after failed open", "error", cerr)
		}
		return nil, err
	}
	return b, nil
}

func (b *board) open(ctx context.Context, cfg *config.Config, variant e25x.Variant) error {
	var err error

	speed := physic.Frequency(cfg.SPI.SpeedHz) * physic.Hertz
	var ch eeprom.Channel
	var bridge *spi.Bridge
	switch cfg.SPI.Driver {
	case config.SPIDriverFTDI:
		bridge, err = spi.OpenFTDI(speed)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, bridge.Close)
		ch = bridge
	default:
		conn, err := spi.Open(cfg.SPI.Port, speed)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, conn.Close)
		ch = conn
	}

	src := &signals{cfg: cfg, bridge: bridge, board: b}
	cs, err := src.signal(ctx, cfg.Pins.CS)
	if err != nil {
		return fmt.Errorf("chip-select: %w", err)
	}
	wp, err := src.signal(ctx, cfg.Pins.WP)
	if err != nil {
		return fmt.Errorf("write-protect: %w", err)
	}
	hold, err := src.signal(ctx, cfg.Pins.Hold)
	if err != nil {
		return fmt.Errorf("hold: %w", err)
	}

	opts := append(cfg.Busy.Options(), e25x.WithLogger(slog.Default()))
	dev, err := e25x.New(ctx, e25x.NewBus(ch, cs, wp, hold), variant, opts...)
	if err != nil {
		return fmt.Errorf("could not initialize %s: %w", variant.Name, err)
	}
	b.storage = e25x.NewStorage(dev)
	return nil
}

// signals builds control lines, opening shared transports once.
type signals struct {
	cfg    *config.Config
	board  *board
	bridge *spi.Bridge

	mcp2221  *adapter.MCP2221
	expander *gpio.MCP23017
	nanopi   gpioWriter
}

type gpioWriter interface {
	DigitalWrite(pin string, val byte) error
}

func (s *signals) signal(ctx context.Context, p config.PinConfig) (eeprom.Signal, error) {
	switch p.Driver {
	case config.PinDriverNone:
		return tied{}, nil
	case config.PinDriverGPIO:
		var opts []spi.PinOpt
		if p.ActiveHigh {
			opts = append(opts, spi.ActiveHigh())
		}
		return spi.PinByName(p.Name, opts...)
	case config.PinDriverFTDI:
		line, err := s.bridge.Line(p.Pin)
		if err != nil {
			return nil, err
		}
		var opts []spi.PinOpt
		if p.ActiveHigh {
			opts = append(opts, spi.ActiveHigh())
		}
		return spi.NewPin(line, opts...), nil
	case config.PinDriverMCP23017:
		exp, err := s.openExpander(ctx)
		if err != nil {
			return nil, err
		}
		var opts []gpio.ExpanderPinOpt
		if p.ActiveHigh {
			opts = append(opts, gpio.ExpanderActiveHigh())
		}
		return exp.Pin(p.Pin, opts...)
	case config.PinDriverMCP2221:
		a := s.openMCP2221()
		if err := a.UseAsOutputs(ctx, 1<<p.Pin); err != nil {
			return nil, fmt.Errorf("could not configure GP%d: %w", p.Pin, err)
		}
		var opts []adapter.PinOpt
		if p.ActiveHigh {
			opts = append(opts, adapter.ActiveHigh())
		}
		return a.Pin(p.Pin, opts...)
	case config.PinDriverNanoPi:
		if s.nanopi == nil {
			adaptor, err := gpio.NanoPi()
			if err != nil {
				return nil, err
			}
			s.board.closers = append(s.board.closers, adaptor.Finalize)
			s.nanopi = adaptor
		}
		var opts []gpio.DigitalPinOpt
		if p.ActiveHigh {
			opts = append(opts, gpio.DigitalActiveHigh())
		}
		return gpio.NewDigitalPin(s.nanopi, p.Name, opts...), nil
	}
	return nil, fmt.Errorf("unknown pin driver %q", p.Driver)
}

func (s *signals) openMCP2221() *adapter.MCP2221 {
	if s.mcp2221 == nil {
		s.mcp2221 = adapter.NewMCP2221()
	}
	return s.mcp2221
}

// openExpander opens the I2C transport and configures every expander line the
// board uses as an output.
func (s *signals) openExpander(ctx context.Context) (*gpio.MCP23017, error) {
	if s.expander != nil {
		return s.expander, nil
	}
	var bus eeprom.I2CBus
	switch s.cfg.I2C.Driver {
	case config.I2CDriverMCP2221:
		bus = s.openMCP2221()
	default:
		generic, err := i2c.NewGenericBus(s.cfg.I2C.Device)
		if err != nil {
			return nil, err
		}
		s.board.closers = append(s.board.closers, generic.Close)
		bus = generic
	}
	exp := gpio.NewMCP23017(bus, s.cfg.I2C.Address, gpio.WithRetryLimit(3))
	var outputs byte
	for _, np := range s.cfg.Pins.All() {
		if np.Pin.Driver == config.PinDriverMCP23017 {
			outputs |= 1 << np.Pin.Pin
		}
	}
	if err := exp.InitA(ctx, ^outputs); err != nil {
		return nil, err
	}
	s.expander = exp
	return exp, nil
}

// withStorage opens the board for the duration of one command.
func withStorage(fn func(c *cli.Context, mem *e25x.Storage) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		b, err := openBoard(c.Context, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(c.Context); err != nil {
				slog.Warn("could not release board", "error", err)
			}
		}()
		return fn(c, b.storage)
	}
}
