// Package spi connects periph.io SPI ports and GPIO pins to the eeprom
// interfaces. Ports are always opened with spi.NoCS: chip-select belongs to the
// memory driver, which may issue several transfers inside one select window.
package spi

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mklimuk/eeprom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSpeed is well below the 10 MHz the 25xx parts accept at 5V.
const DefaultSpeed = 2 * physic.MegaHertz

var _ eeprom.Channel = &Channel{}

// Channel is an eeprom.Channel backed by a periph spi.Conn.
type Channel struct {
	conn   spi.Conn
	closer io.Closer
	max    int
}

// NewChannel wraps an already connected spi.Conn. Transfers longer than the
// port's MaxTxSize, when it reports one, are split.
func NewChannel(c spi.Conn) *Channel {
	ch := &Channel{conn: c}
	if l, ok := c.(conn.Limits); ok {
		ch.max = l.MaxTxSize()
	}
	return ch
}

// Open initializes the host drivers and connects to the named spidev port
// ("" picks the first one registered) in mode 0 without chip-select.
func Open(name string, speed physic.Frequency) (*Channel, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %q: %w", name, err)
	}
	ch, err := connect(port, speed)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	ch.closer = port
	return ch, nil
}

func connect(port spi.Port, speed physic.Frequency) (*Channel, error) {
	if speed == 0 {
		speed = DefaultSpeed
	}
	c, err := port.Connect(speed, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", port, err)
	}
	slog.Debug("spi connected", "port", port.String(), "speed", speed)
	return NewChannel(c), nil
}

func initHost() error {
	state, err := host.Init()
	if err != nil {
		return fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	return nil
}

func (c *Channel) Transfer(ctx context.Context, buffer []byte) error {
	return c.tx(ctx, buffer, true)
}

func (c *Channel) Write(ctx context.Context, buffer []byte) error {
	return c.tx(ctx, buffer, false)
}

func (c *Channel) tx(ctx context.Context, buffer []byte, duplex bool) error {
	for len(buffer) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := len(buffer)
		if c.max > 0 && n > c.max {
			n = c.max
		}
		var r []byte
		if duplex {
			r = buffer[:n]
		}
		if err := c.conn.Tx(buffer[:n], r); err != nil {
			return fmt.Errorf("spi tx of %d bytes failed: %w", n, err)
		}
		buffer = buffer[n:]
	}
	return nil
}

func (c *Channel) String() string {
	return c.conn.String()
}

// Close releases the port when the Channel opened it.
func (c *Channel) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
