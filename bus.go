package eeprom

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// Channel is a duplex SPI byte channel. Chip-select is not managed by the channel;
// the driver brackets every frame with its own Signal.
type Channel interface {
	// Transfer clocks buffer out and overwrites it with the bytes received.
	Transfer(ctx context.Context, buffer []byte) error
	// Write clocks buffer out and discards whatever comes back.
	Write(ctx context.Context, buffer []byte) error
}

// Signal is a logical output line. Assert drives it to its active level,
// Deassert to the inactive one; electrical polarity is the implementation's concern.
type Signal interface {
	Assert(ctx context.Context) error
	Deassert(ctx context.Context) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus feeds the GPIO expanders that may drive the memory control lines.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
