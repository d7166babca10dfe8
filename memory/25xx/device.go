// Package e25x drives the Microchip 25xx family of SPI EEPROMs (25LC080 up to
// 25LC1024/25AA1024): instruction framing, STATUS register handling, and a linear
// storage view with page-aware writes and WIP polling.
//
// Datasheet reference: Microchip 25LC1024 (DS20001836), Table 2-1 Instruction Set.
//
// The chip-select, write-protect and hold lines are driven by the package, never by
// the SPI channel, so a transaction can span several channel calls:
//
//	bus := e25x.NewBus(conn, cs, wp, hold)
//	dev, err := e25x.New(ctx, bus, e25x.LC1024)
//	if err != nil { log.Fatal(err) }
//	mem := e25x.NewStorage(dev)
//	err = mem.Write(ctx, 0x1000, []byte("hello"))
package e25x

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mklimuk/eeprom"
)

// Bus groups the SPI channel and the three control lines of one physical chip.
// A Bus is owned by at most one Device at a time.
type Bus struct {
	Channel eeprom.Channel
	CS      eeprom.Signal
	WP      eeprom.Signal
	Hold    eeprom.Signal

	claimed atomic.Bool
}

func NewBus(ch eeprom.Channel, cs, wp, hold eeprom.Signal) *Bus {
	return &Bus{Channel: ch, CS: cs, WP: wp, Hold: hold}
}

func (b *Bus) claim() bool { return b.claimed.CompareAndSwap(false, true) }

func (b *Bus) release() { b.claimed.Store(false) }

type Mode int

const (
	ModeActive Mode = iota
	ModeHeld
	ModeDeepSleep
)

func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeHeld:
		return "held"
	case ModeDeepSleep:
		return "deep-sleep"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Device is the low level driver. It is not safe for concurrent use; callers
// sharing a chip between goroutines must serialize access themselves.
type Device struct {
	bus     *Bus
	variant Variant
	opts    Opts
	log     *slog.Logger

	held   bool
	asleep bool
	closed bool
}

// New claims bus and runs the power-up sequence: lines released, RDID checked
// against ManufacturerID, STATUS register locked (WPEN set, WP asserted) for parts
// that support it, deep sleep for parts that have it. The device is left on hold.
// On error the bus claim is dropped and no Device is returned.
func New(ctx context.Context, bus *Bus, variant Variant, opts ...Opt) (*Device, error) {
	if err := variant.Validate(); err != nil {
		return nil, err
	}
	if !bus.claim() {
		return nil, ErrBusClaimed
	}
	o := Opts{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	d := &Device{
		bus:     bus,
		variant: variant,
		opts:    o,
		log:     o.Logger.With("device", variant.Name),
	}
	if err := d.init(ctx); err != nil {
		bus.release()
		return nil, err
	}
	return d, nil
}

func (d *Device) init(ctx context.Context) error {
	if err := d.drive(ctx, d.bus.CS, "chip-select", false); err != nil {
		return err
	}
	if err := d.Resume(ctx); err != nil {
		return err
	}
	if err := d.drive(ctx, d.bus.WP, "write-protect", false); err != nil {
		return err
	}
	id, err := d.Wake(ctx)
	if err != nil {
		return fmt.Errorf("could not read manufacturer id: %w", err)
	}
	if id != ManufacturerID {
		return &IdentityError{Expected: ManufacturerID, Actual: id}
	}
	d.log.Debug("device identified", "id", fmt.Sprintf("%#02x", id))
	if d.variant.StatusLock {
		if err := d.WriteEnable(ctx); err != nil {
			return err
		}
		if err := d.UnlockStatus(ctx); err != nil {
			return fmt.Errorf("could not unlock status register: %w", err)
		}
		if err := d.WriteEnable(ctx); err != nil {
			return err
		}
		if err := d.LockStatus(ctx); err != nil {
			return fmt.Errorf("could not lock status register: %w", err)
		}
	}
	if d.variant.DeepSleep {
		if err := d.DeepSleep(ctx); err != nil {
			return err
		}
	}
	return d.Hold(ctx)
}

func (d *Device) Variant() Variant { return d.variant }

// Mode reports hold before deep sleep since a held chip answers nothing.
func (d *Device) Mode() Mode {
	switch {
	case d.held:
		return ModeHeld
	case d.asleep:
		return ModeDeepSleep
	}
	return ModeActive
}

func (d *Device) drive(ctx context.Context, sig eeprom.Signal, name string, assert bool) error {
	var err error
	if assert {
		err = sig.Assert(ctx)
	} else {
		err = sig.Deassert(ctx)
	}
	if err != nil {
		return &SignalError{Signal: name, Assert: assert, Err: err}
	}
	return nil
}

// transaction runs xfer inside a single chip-select window. CS is released even
// when the channel fails.
func (d *Device) transaction(ctx context.Context, op Instruction, xfer func(ch eeprom.Channel) error) (err error) {
	if d.closed {
		return ErrClosed
	}
	if d.held {
		return ErrHeld
	}
	if err := d.drive(ctx, d.bus.CS, "chip-select", true); err != nil {
		return err
	}
	defer func() {
		csErr := d.drive(ctx, d.bus.CS, "chip-select", false)
		if csErr != nil && err == nil {
			err = csErr
		}
	}()
	if err := xfer(d.bus.Channel); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return nil
}

// command sends a short frame full duplex; the received bytes replace frame.
func (d *Device) command(ctx context.Context, frame []byte) error {
	return d.transaction(ctx, Instruction(frame[0]), func(ch eeprom.Channel) error {
		return ch.Transfer(ctx, frame)
	})
}

// Status reads the STATUS register.
func (d *Device) Status(ctx context.Context) (Status, error) {
	buf := []byte{byte(ReadStatus), 0x00}
	if err := d.command(ctx, buf); err != nil {
		return 0, err
	}
	return Status(buf[1]), nil
}

// WriteStatus sends WRSR. The chip ignores it unless the write latch is set and
// the register is not locked by WPEN together with an asserted WP.
func (d *Device) WriteStatus(ctx context.Context, status Status) error {
	return d.command(ctx, []byte{byte(WriteStatus), byte(status)})
}

func (d *Device) WriteEnable(ctx context.Context) error {
	return d.command(ctx, []byte{byte(WriteEnable)})
}

func (d *Device) WriteDisable(ctx context.Context) error {
	return d.command(ctx, []byte{byte(WriteDisable)})
}

// Read clocks len(buf) bytes starting at address. The chip increments the address
// across page boundaries on reads.
func (d *Device) Read(ctx context.Context, address uint32, buf []byte) error {
	header := Header(Read, address)
	return d.transaction(ctx, Read, func(ch eeprom.Channel) error {
		if err := ch.Write(ctx, header[:]); err != nil {
			return err
		}
		if len(buf) == 0 {
			return nil
		}
		clear(buf)
		return ch.Transfer(ctx, buf)
	})
}

// Write sends one WRITE burst. The payload must not cross a page boundary: the
// chip wraps to the start of the page instead. The write latch must be set.
func (d *Device) Write(ctx context.Context, address uint32, payload []byte) error {
	header := Header(Write, address)
	return d.transaction(ctx, Write, func(ch eeprom.Channel) error {
		if err := ch.Write(ctx, header[:]); err != nil {
			return err
		}
		if len(payload) == 0 {
			return nil
		}
		return ch.Write(ctx, payload)
	})
}

// Erase clears the page or sector containing address, or the whole array.
// It fails with ErrDeviceBusy if a write cycle is running; it does not wait.
func (d *Device) Erase(ctx context.Context, address uint32, erase Erase) error {
	switch erase {
	case ErasePage, EraseSector, EraseChip:
	default:
		return fmt.Errorf("e25x: invalid erase granularity %#02x", byte(erase))
	}
	st, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if st.Busy() {
		return ErrDeviceBusy
	}
	if err := d.WriteEnable(ctx); err != nil {
		return err
	}
	// the erase opcode replaces the top byte; bits below the erase unit are ignored by the part
	header := Header(Instruction(erase), address)
	return d.command(ctx, header[:])
}

// DeepSleep sends DPD. Only RDID is answered afterwards.
func (d *Device) DeepSleep(ctx context.Context) error {
	if err := d.command(ctx, []byte{byte(DeepSleep)}); err != nil {
		return err
	}
	d.asleep = true
	return nil
}

// Wake sends RDID, which also releases deep power-down, and returns the
// manufacturer ID clocked out in the last byte of the frame.
func (d *Device) Wake(ctx context.Context) (byte, error) {
	buf := make([]byte, d.variant.identityFrameLen())
	buf[0] = byte(ReleasePowerDown)
	if err := d.command(ctx, buf); err != nil {
		return 0, err
	}
	d.asleep = false
	return buf[len(buf)-1], nil
}

// Hold asserts HOLD; the chip ignores the clock until Resume.
func (d *Device) Hold(ctx context.Context) error {
	if err := d.drive(ctx, d.bus.Hold, "hold", true); err != nil {
		return err
	}
	d.held = true
	return nil
}

func (d *Device) Resume(ctx context.Context) error {
	if err := d.drive(ctx, d.bus.Hold, "hold", false); err != nil {
		return err
	}
	d.held = false
	return nil
}

// UnlockStatus clears WPEN so WP no longer guards the STATUS register.
// A WriteEnable must precede it.
func (d *Device) UnlockStatus(ctx context.Context) error {
	if err := d.drive(ctx, d.bus.WP, "write-protect", false); err != nil {
		return err
	}
	st, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if err := d.WriteStatus(ctx, st.WithProtectionEnabled(false)); err != nil {
		return err
	}
	return d.WaitReady(ctx)
}

// LockStatus sets WPEN and asserts WP, making the STATUS register read-only.
// A WriteEnable must precede it.
func (d *Device) LockStatus(ctx context.Context) error {
	if err := d.drive(ctx, d.bus.WP, "write-protect", false); err != nil {
		return err
	}
	st, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if err := d.WriteStatus(ctx, st.WithProtectionEnabled(true)); err != nil {
		return err
	}
	if err := d.WaitReady(ctx); err != nil {
		return err
	}
	return d.drive(ctx, d.bus.WP, "write-protect", true)
}

// SetProtection changes the block protection level and leaves the STATUS
// register locked again.
func (d *Device) SetProtection(ctx context.Context, level Protection) error {
	if err := d.WriteEnable(ctx); err != nil {
		return err
	}
	if err := d.UnlockStatus(ctx); err != nil {
		return fmt.Errorf("could not unlock status register: %w", err)
	}
	if err := d.WriteEnable(ctx); err != nil {
		return err
	}
	st, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if err := d.WriteStatus(ctx, st.WithProtectionLevel(level)); err != nil {
		return err
	}
	if err := d.WaitReady(ctx); err != nil {
		return err
	}
	if err := d.WriteEnable(ctx); err != nil {
		return err
	}
	if err := d.LockStatus(ctx); err != nil {
		return fmt.Errorf("could not lock status register: %w", err)
	}
	d.log.Debug("protection level set", "level", level)
	return nil
}

// WaitReady polls STATUS until WIP clears. Each poll is its own CS window.
func (d *Device) WaitReady(ctx context.Context) error {
	var deadline time.Time
	if d.opts.BusyTimeout > 0 {
		deadline = time.Now().Add(d.opts.BusyTimeout)
	}
	for polls := 1; ; polls++ {
		st, err := d.Status(ctx)
		if err != nil {
			return err
		}
		if !st.Busy() {
			return nil
		}
		if d.opts.MaxPolls > 0 && polls >= d.opts.MaxPolls {
			return fmt.Errorf("%w after %d polls", ErrWriteTimeout, polls)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrWriteTimeout, d.opts.BusyTimeout)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.opts.PollInterval <= 0 {
			continue
		}
		timer := time.NewTimer(d.opts.PollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Close parks the chip (deep sleep where supported, hold asserted) and gives the
// bus back. The Device is unusable afterwards.
func (d *Device) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	if d.variant.DeepSleep && !d.asleep {
		if err := d.Resume(ctx); err != nil {
			return err
		}
		if err := d.DeepSleep(ctx); err != nil {
			return err
		}
	}
	if err := d.Hold(ctx); err != nil {
		return err
	}
	d.closed = true
	d.bus.release()
	return nil
}
