// Package adapter drives USB bridges that expose an I2C bus and a few GPIO
// lines to the host. The MCP2221 can feed an MCP23017 expander or drive the
// memory control lines directly from GP0..GP3.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/eectx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const reportSize = 64

// command codes
const (
	cmdStatus         = 0x10
	cmdI2CReadData    = 0x40
	cmdSetGPIOOutput  = 0x50
	cmdGetGPIOValues  = 0x51
	cmdSetSRAM        = 0x60
	cmdI2CWrite       = 0x90
	cmdI2CRead        = 0x91
	cmdReadFlash      = 0xB0
	cmdWriteFlash     = 0xB1
	flashGPSettings   = 0x01
	statusCancelI2C   = 0x10
	sramAlterGP       = 0x80
	gpNotGPIO         = 0xEE
	gpioOutputHighBit = 0b00010000
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

// hidDevice is the part of *hid.Device the adapter talks to.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type opener func(id ...int) (hidDevice, error)

type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	open         opener
	id           []int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

func (m GPIOMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// This is alternate function of GPIO0
	GPIO0LedUartRx GPIODesignation = 0b00000001
	// This is the dedicated function operation of GPIO0
	GPIO0SSPND GPIODesignation = 0b00000010
	// This is the dedicated function of GPIO1
	GPIO1ClockOutput GPIODesignation = 0b00000001
	// This is the alternate function 0 of GPIO1
	GPIO1ADC1 GPIODesignation = 0b00000010
	// This is the alternate function 1 of GPIO1
	GPIO1LedUartTx GPIODesignation = 0b00000011
	// This is the alternate function 2 of GPIO1
	GPIO1InterruptDetection GPIODesignation = 0b00000100
	// This is the dedicated function of GPIO2
	GPIO2ClockOutput GPIODesignation = 0b00000001
	// This is the alternate function 0 of GPIO2
	GPIO2ADC2 GPIODesignation = 0b00000010
	// This is the alternate function 1 of GPIO2
	GPIO2DAC1 GPIODesignation = 0b00000011
	// This is the dedicated function of GPIO3
	GPIO3LEDI2C GPIODesignation = 0b00000001
	// This is the alternate function 0 of GPIO3
	GPIO3ADC3 GPIODesignation = 0b00000010
	// This is the alternate function 1 of GPIO3
	GPIO3DAC2 GPIODesignation = 0b00000011
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

type MCP2221Opt func(*MCP2221)

// WithDeviceIndex selects one adapter when several are plugged in.
func WithDeviceIndex(id int) MCP2221Opt {
	return func(d *MCP2221) {
		d.id = []int{id}
	}
}

// WithResponseWait sets the pause between a request and reading its response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		open:         openHID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ eeprom.I2CBus = &MCP2221{}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	// write could not be performed
	if d.response[1] == 0x01 {
		slog.Debug("adapter busy", "address", address)
		return eeprom.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdI2CRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return eeprom.ErrBusBusy
	}
	d.request[0] = cmdI2CReadData
	resetBuffer(d.response)
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}

	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteFlash
	d.request[1] = flashGPSettings
	d.request[2] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[3] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[4] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[5] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadFlash
	d.request[1] = flashGPSettings
	err := d.send(ctx)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return bufferToParameters(d.response), nil
}

func bufferToParameters(buffer []byte) MCP2221GPIOParameters {
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(buffer[4] & gpioModeMask),
		GPIO0Designation: GPIODesignation(buffer[4] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(buffer[5] & gpioModeMask),
		GPIO1Designation: GPIODesignation(buffer[5] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(buffer[6] & gpioModeMask),
		GPIO2Designation: GPIODesignation(buffer[6] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(buffer[7] & gpioModeMask),
		GPIO3Designation: GPIODesignation(buffer[7] & gpioOperationMask),
	}
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIOValues
	err := d.send(ctx)
	if err != nil {
		return MCP2221GPIOValues{}, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOValues{}, ErrCommandFailed
	}
	return bufferToValues(d.response), nil
}

func bufferToValues(buffer []byte) MCP2221GPIOValues {
	mode := func(b byte) GPIOMode {
		if b == gpNotGPIO {
			return GPIOModeNoOperation
		}
		return GPIOMode(b << 3)
	}
	return MCP2221GPIOValues{
		GPIO0Value: buffer[2],
		GPIO0Mode:  mode(buffer[3]),
		GPIO1Value: buffer[4],
		GPIO1Mode:  mode(buffer[5]),
		GPIO2Value: buffer[6],
		GPIO2Mode:  mode(buffer[7]),
		GPIO3Value: buffer[8],
		GPIO3Mode:  mode(buffer[9]),
	}
}

// UseAsOutputs switches the GP pins in mask (bit n for GPn) to GPIO outputs in
// SRAM, driven high. The other pins keep their designation. Flash settings are
// untouched so the change is lost on power cycle.
func (d *MCP2221) UseAsOutputs(ctx context.Context, mask byte) error {
	params, err := d.GetGPIOParameters(ctx)
	if err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	sramOutputsRequest(d.request, params, mask)
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("set SRAM settings command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

func sramOutputsRequest(request []byte, params MCP2221GPIOParameters, mask byte) {
	request[0] = cmdSetSRAM
	request[7] = sramAlterGP
	current := []byte{
		byte(params.GPIO0Designation) | byte(params.GPIO0Mode),
		byte(params.GPIO1Designation) | byte(params.GPIO1Mode),
		byte(params.GPIO2Designation) | byte(params.GPIO2Mode),
		byte(params.GPIO3Designation) | byte(params.GPIO3Mode),
	}
	for n := 0; n < 4; n++ {
		if mask&(1<<n) == 0 {
			request[8+n] = current[n]
			continue
		}
		request[8+n] = byte(GPIOOperation) | byte(GPIOModeOut) | gpioOutputHighBit
	}
}

// SetGPIO drives output GPn. The pin must be a GPIO output (see UseAsOutputs).
func (d *MCP2221) SetGPIO(ctx context.Context, n int, high bool) error {
	if n < 0 || n > 3 {
		return fmt.Errorf("mcp2221 has no GP%d", n)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	gpioOutputRequest(d.request, n, high)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set GPIO output command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	if d.response[3+4*n] == gpNotGPIO {
		return fmt.Errorf("GP%d is not designated as GPIO: %w", n, ErrCommandFailed)
	}
	return nil
}

// gpioOutputRequest fills a Set GPIO Output Values request that alters the
// value and direction (output) of GPn only.
func gpioOutputRequest(request []byte, n int, high bool) {
	request[0] = cmdSetGPIOOutput
	base := 2 + 4*n
	request[base] = 0x01
	if high {
		request[base+1] = 0x01
	}
	request[base+2] = 0x01
	request[base+3] = byte(GPIOModeOut)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancelI2C
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func openHID(id ...int) (hidDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) > 1 && len(id) == 0 {
		return nil, fmt.Errorf("ambiguous device identification")
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	idx := 0
	if len(id) > 0 {
		idx = id[0]
		if idx < 0 || idx >= len(devs) {
			return nil, fmt.Errorf("no device with id %d", idx)
		}
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// send writes the request report and reads the response report into d.response.
func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.open(d.id...)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := eectx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "request", "\n"+hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.responseWait):
		}
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "response", "\n"+hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	clear(buf)
}

// Pin returns GPn (0..3) as an active-low signal.
func (d *MCP2221) Pin(n int, opts ...PinOpt) (*Pin, error) {
	if n < 0 || n > 3 {
		return nil, fmt.Errorf("mcp2221 has no GP%d", n)
	}
	p := &Pin{dev: d, n: n}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

var _ eeprom.Signal = &Pin{}

type Pin struct {
	dev        *MCP2221
	n          int
	activeHigh bool
}

type PinOpt func(*Pin)

func ActiveHigh() PinOpt {
	return func(p *Pin) {
		p.activeHigh = true
	}
}

func (p *Pin) Assert(ctx context.Context) error {
	return p.dev.SetGPIO(ctx, p.n, p.activeHigh)
}

func (p *Pin) Deassert(ctx context.Context) error {
	return p.dev.SetGPIO(ctx, p.n, !p.activeHigh)
}
