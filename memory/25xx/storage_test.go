package e25x

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T, v Variant, opts ...Opt) (*Storage, *chip) {
	t.Helper()
	dev, c := newTestDevice(t, v, opts...)
	c.reset()
	return NewStorage(dev), c
}

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + 3)
	}
	return buf
}

func TestChunks(t *testing.T) {
	tests := []struct {
		offset   uint32
		length   int
		pageSize uint32
		expected []Chunk
	}{
		{10, 20, 16, []Chunk{{10, 0, 6}, {16, 6, 14}}},
		{0, 32, 16, []Chunk{{0, 0, 16}, {16, 16, 16}}},
		{16, 1, 16, []Chunk{{16, 0, 1}}},
		{250, 300, 256, []Chunk{{250, 0, 6}, {256, 6, 256}, {512, 262, 38}}},
		{0, 0, 64, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d+%d/%d", tt.offset, tt.length, tt.pageSize), func(t *testing.T) {
			assert.Equal(t, tt.expected, Chunks(tt.offset, tt.length, tt.pageSize))
		})
	}
}

func TestChunks_NeverCrossPage(t *testing.T) {
	for _, pageSize := range []uint32{16, 32, 64, 128, 256} {
		for offset := uint32(0); offset < 3*pageSize; offset += 5 {
			for _, length := range []int{1, 7, int(pageSize), int(pageSize) + 1, 4*int(pageSize) - 3} {
				chunks := Chunks(offset, length, pageSize)
				first := offset / pageSize
				last := (offset + uint32(length) - 1) / pageSize
				require.Len(t, chunks, int(last-first+1))
				total := 0
				for _, c := range chunks {
					require.Equal(t, c.Address/pageSize, (c.Address+uint32(c.Length)-1)/pageSize)
					require.Equal(t, offset+uint32(c.Start), c.Address)
					total += c.Length
				}
				require.Equal(t, length, total)
			}
		}
	}
}

func TestStorage_WriteSplitsOnPages(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStorage(t, LC080)
	data := pattern(20)

	require.NoError(t, s.Write(ctx, 10, data))

	assert.Equal(t, []burst{{addr: 10, n: 6}, {addr: 16, n: 14}}, c.bursts)
	assert.Equal(t, data, c.mem[10:30])
	burstOps := []Instruction{WriteEnable, Write, ReadStatus, ReadStatus, ReadStatus, WriteDisable}
	assert.Equal(t, append(append([]Instruction{}, burstOps...), burstOps...), c.ops)
	assert.Equal(t, "hold-", c.events[0])
	assert.Equal(t, "hold+", c.events[len(c.events)-1])
	assert.False(t, c.status.WriteLatchEnabled())
}

func TestStorage_WriteWakesSleepingParts(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStorage(t, LC1024)
	data := pattern(600)

	require.NoError(t, s.Write(ctx, 0x1FF00, data[:256]))
	require.NoError(t, s.Write(ctx, 100, data))

	assert.Equal(t, data[:256], c.mem[0x1FF00:])
	assert.Equal(t, data, c.mem[100:700])
	assert.Equal(t, 2, c.count(ReleasePowerDown))
	assert.Equal(t, 2, c.count(DeepSleep))
	assert.Equal(t, DeepSleep, c.ops[len(c.ops)-1])
	assert.True(t, c.asleep)
	assert.True(t, c.hold)
	for _, b := range c.bursts {
		assert.LessOrEqual(t, b.n, 256)
	}
}

func TestStorage_Read(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStorage(t, LC512)
	data := pattern(300)
	copy(c.mem[1000:], data)

	buf := make([]byte, len(data))
	require.NoError(t, s.Read(ctx, 1000, buf))
	assert.Equal(t, data, buf)
	assert.Equal(t, []Instruction{ReleasePowerDown, Read, DeepSleep}, c.ops)
	assert.Equal(t, "hold-", c.events[0])
	assert.Equal(t, "hold+", c.events[len(c.events)-1])
}

func TestStorage_ReadToEnd(t *testing.T) {
	s, c := newTestStorage(t, LC080)
	copy(c.mem[1008:], pattern(16))
	buf := make([]byte, 16)
	require.NoError(t, s.Read(context.Background(), 1008, buf))
	assert.Equal(t, pattern(16), buf)
}

func TestStorage_OutOfRange(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		offset uint32
		length int
	}{
		{"one past end", 1024 - 15, 16},
		{"offset past end", 1024, 1},
		{"huge offset", 0xFFFFFFFF, 2},
		{"whole plus one", 0, 1025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, c := newTestStorage(t, LC080)
			err := s.Write(ctx, tt.offset, make([]byte, tt.length))
			assert.ErrorIs(t, err, ErrOutOfRange)
			err = s.Read(ctx, tt.offset, make([]byte, tt.length))
			assert.ErrorIs(t, err, ErrOutOfRange)
			assert.Empty(t, c.events)
		})
	}
}

func TestStorage_EmptyBuffers(t *testing.T) {
	s, c := newTestStorage(t, LC080)
	assert.NoError(t, s.Write(context.Background(), 1024, nil))
	assert.NoError(t, s.Read(context.Background(), 0, nil))
	assert.Empty(t, c.events)
}

func TestStorage_WriteStopsOnTransportError(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStorage(t, LC080)
	c.failOp = WriteDisable
	c.failErr = errors.New("spi: short transfer")

	err := s.Write(ctx, 0, pattern(40))
	assert.ErrorIs(t, err, c.failErr)
	// first burst landed, nothing else was attempted
	assert.Equal(t, []burst{{addr: 0, n: 16}}, c.bursts)
	assert.Equal(t, pattern(16), c.mem[:16])
	assert.False(t, c.cs)
}

func TestStorage_WriteTimeout(t *testing.T) {
	s, c := newTestStorage(t, LC080, WithBusyTimeout(5*time.Millisecond), WithPollInterval(time.Millisecond))
	c.busyCycles = 1 << 30

	start := time.Now()
	err := s.Write(context.Background(), 0, pattern(4))
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStorage_Erase(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStorage(t, LC1024)
	require.NoError(t, s.Write(ctx, 0x8000, pattern(512)))

	require.NoError(t, s.Erase(ctx, 0x8010, EraseSector))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 512), c.mem[0x8000:0x8200])
	assert.True(t, c.asleep)

	assert.ErrorIs(t, s.Erase(ctx, s.Capacity(), ErasePage), ErrOutOfRange)
}

func TestStorage_SetProtection(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStorage(t, LC256)

	require.NoError(t, s.SetProtection(ctx, ProtectQuarter))
	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, ProtectQuarter, st.ProtectionLevel())
	assert.True(t, st.ProtectionEnabled())

	// upper quarter ignores writes, the rest does not
	top := s.Capacity() - 64
	require.NoError(t, s.Write(ctx, top, pattern(64)))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 64), c.mem[top:])
	require.NoError(t, s.Write(ctx, 0, pattern(64)))
	assert.Equal(t, pattern(64), c.mem[:64])
}

func TestStorage_ReaderWriterAt(t *testing.T) {
	s, _ := newTestStorage(t, LC320)
	data := []byte("the quick brown fox jumps over the lazy dog")

	n, err := s.WriteAt(data, 30)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = s.ReadAt(buf, 30)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)

	_, err = s.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.WriteAt(buf, int64(s.Capacity()))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestStorage_ReadAtEnd(t *testing.T) {
	s, c := newTestStorage(t, LC080)
	end := int64(s.Capacity())
	copy(c.mem[end-4:], "tail")

	buf := make([]byte, 10)
	n, err := s.ReadAt(buf, end-4)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("tail"), buf[:n])

	n, err = s.ReadAt(buf, end)
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, n)

	// a section reader over the whole array stops cleanly at capacity
	all, err := io.ReadAll(io.NewSectionReader(s, 0, end+100))
	require.NoError(t, err)
	assert.Len(t, all, int(end))
	assert.Equal(t, []byte("tail"), all[end-4:])

	// writes stay all or nothing
	n, err = s.WriteAt([]byte("overflow"), end-4)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Zero(t, n)
	assert.Equal(t, []byte("tail"), c.mem[end-4:])
}

func TestStorage_Geometry(t *testing.T) {
	s, _ := newTestStorage(t, LC640)
	assert.Equal(t, uint32(8192), s.Capacity())
	assert.Equal(t, uint32(32), s.PageSize())
	assert.Equal(t, LC640, s.Variant())
}
