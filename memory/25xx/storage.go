package e25x

import (
	"context"
	"fmt"
	"io"
	"math"
)

var (
	_ io.ReaderAt = (*Storage)(nil)
	_ io.WriterAt = (*Storage)(nil)
)

// Storage is a linear, capacity bounded view of one Device. Between operations
// the chip stays on hold (and in deep sleep for parts that support it).
type Storage struct {
	dev      *Device
	capacity uint32
	pageSize uint32
}

// NewStorage takes ownership of dev.
func NewStorage(dev *Device) *Storage {
	return &Storage{
		dev:      dev,
		capacity: dev.variant.Capacity,
		pageSize: dev.variant.PageSize,
	}
}

func (s *Storage) Capacity() uint32 { return s.capacity }

func (s *Storage) PageSize() uint32 { return s.pageSize }

func (s *Storage) Variant() Variant { return s.dev.variant }

func (s *Storage) Device() *Device { return s.dev }

func (s *Storage) check(offset uint32, length int) error {
	if uint64(offset)+uint64(length) > uint64(s.capacity) {
		return fmt.Errorf("%w: %d bytes at %#x, capacity %d", ErrOutOfRange, length, offset, s.capacity)
	}
	return nil
}

// session lifts the hold and wakes the chip for fn, then parks it again.
// A failure returns straight away and leaves the lines as they are.
func (s *Storage) session(ctx context.Context, fn func() error) error {
	if err := s.dev.Resume(ctx); err != nil {
		return err
	}
	if s.dev.variant.DeepSleep {
		if _, err := s.dev.Wake(ctx); err != nil {
			return err
		}
	}
	if err := fn(); err != nil {
		return err
	}
	if s.dev.variant.DeepSleep {
		if err := s.dev.DeepSleep(ctx); err != nil {
			return err
		}
	}
	return s.dev.Hold(ctx)
}

// Read fills buf from offset in one READ transaction.
func (s *Storage) Read(ctx context.Context, offset uint32, buf []byte) error {
	if err := s.check(offset, len(buf)); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	return s.session(ctx, func() error {
		return s.dev.Read(ctx, offset, buf)
	})
}

// Write stores data at offset, one page-bounded burst per write enable cycle,
// waiting for each internal write cycle to finish. A failure part way leaves the
// earlier bursts written.
func (s *Storage) Write(ctx context.Context, offset uint32, data []byte) error {
	if err := s.check(offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	chunks := Chunks(offset, len(data), s.pageSize)
	s.dev.log.Debug("writing", "offset", offset, "length", len(data), "bursts", len(chunks))
	return s.session(ctx, func() error {
		for _, c := range chunks {
			if err := s.dev.WriteEnable(ctx); err != nil {
				return err
			}
			if err := s.dev.Write(ctx, c.Address, data[c.Start:c.Start+c.Length]); err != nil {
				return fmt.Errorf("page write at %#x failed: %w", c.Address, err)
			}
			if err := s.dev.WaitReady(ctx); err != nil {
				return fmt.Errorf("page write at %#x did not complete: %w", c.Address, err)
			}
			if err := s.dev.WriteDisable(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Erase runs Device.Erase with the chip woken up.
func (s *Storage) Erase(ctx context.Context, address uint32, erase Erase) error {
	if erase != EraseChip {
		if err := s.check(address, 1); err != nil {
			return err
		}
	}
	return s.session(ctx, func() error {
		if err := s.dev.Erase(ctx, address, erase); err != nil {
			return err
		}
		return s.dev.WaitReady(ctx)
	})
}

func (s *Storage) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.session(ctx, func() error {
		var err error
		st, err = s.dev.Status(ctx)
		return err
	})
	return st, err
}

func (s *Storage) SetProtection(ctx context.Context, level Protection) error {
	return s.session(ctx, func() error {
		return s.dev.SetProtection(ctx, level)
	})
}

// ReadAt follows io.ReaderAt: a read reaching past the end of the array
// returns the bytes up to capacity and io.EOF. Negative offsets fail with
// ErrOutOfRange.
func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, off)
	}
	if off >= int64(s.capacity) {
		return 0, io.EOF
	}
	n := len(p)
	if rest := int64(s.capacity) - off; int64(n) > rest {
		n = int(rest)
	}
	if err := s.Read(context.Background(), uint32(off), p[:n]); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes all of p or nothing: a write reaching past capacity fails
// with ErrOutOfRange before touching the bus.
func (s *Storage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > math.MaxUint32 {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, off)
	}
	if err := s.Write(context.Background(), uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Chunk is one page-bounded write burst: Length bytes from Start in the source
// buffer go to Address.
type Chunk struct {
	Address uint32
	Start   int
	Length  int
}

// Chunks splits length bytes at offset so that no chunk crosses a page boundary.
// pageSize must be a power of two.
func Chunks(offset uint32, length int, pageSize uint32) []Chunk {
	var out []Chunk
	for start := 0; start < length; {
		pageOffset := offset % pageSize
		n := min(length-start, int(pageSize-pageOffset))
		out = append(out, Chunk{Address: offset, Start: start, Length: n})
		offset += uint32(n)
		start += n
	}
	return out
}
