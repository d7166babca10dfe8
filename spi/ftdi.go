package spi

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3/ftdi"
)

const (
	FTDIVendorID     = 0x0403
	FT232HProductID  = 0x6014
	FT2232HProductID = 0x6010
)

var ErrNoBridge = errors.New("no FT232H/FT2232H bridge found")

// Bridge is an FTDI MPSSE device used as SPI master. Its D3..D7 lines are free
// for the memory control signals (D0..D2 carry SCK, MOSI and MISO).
type Bridge struct {
	*Channel
	dev *ftdi.FT232H
}

// OpenFTDI connects to the first FT232H or FT2232H attached.
func OpenFTDI(speed physic.Frequency) (*Bridge, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	dev := findFT232H()
	if dev == nil {
		return nil, ErrNoBridge
	}
	port, err := dev.SPI()
	if err != nil {
		return nil, fmt.Errorf("could not get spi port of %s: %w", dev, err)
	}
	ch, err := connect(port, speed)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	ch.closer = port
	return &Bridge{Channel: ch, dev: dev}, nil
}

func findFT232H() *ftdi.FT232H {
	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != FTDIVendorID {
			continue
		}
		if info.DevID != FT232HProductID && info.DevID != FT2232HProductID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft
		}
	}
	return nil
}

// Line returns data bus line Dn (3 to 7) of the bridge.
func (b *Bridge) Line(n int) (gpio.PinOut, error) {
	switch n {
	case 3:
		return b.dev.D3, nil
	case 4:
		return b.dev.D4, nil
	case 5:
		return b.dev.D5, nil
	case 6:
		return b.dev.D6, nil
	case 7:
		return b.dev.D7, nil
	}
	return nil, fmt.Errorf("ftdi line D%d is not available for signals", n)
}

// Pin wraps line Dn as an active-low signal.
func (b *Bridge) Pin(n int) (*Pin, error) {
	line, err := b.Line(n)
	if err != nil {
		return nil, err
	}
	return NewPin(line), nil
}

// ListFTDI returns the descriptors of every FTDI device periph can see.
func ListFTDI() ([]ftdi.Info, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	var out []ftdi.Info
	for _, dev := range ftdi.All() {
		info := ftdi.Info{}
		dev.Info(&info)
		out = append(out, info)
	}
	return out, nil
}
