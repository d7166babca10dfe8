package spi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
)

type limited struct {
	spi.Conn
	n int
}

func (l *limited) MaxTxSize() int { return l.n }

func playback(ops ...conntest.IO) *spitest.Playback {
	return &spitest.Playback{Playback: conntest.Playback{DontPanic: true, Ops: ops}}
}

// open connects a playback port the way Open connects a spidev one.
func open(t *testing.T, pb *spitest.Playback) *Channel {
	t.Helper()
	ch, err := connect(pb, 0)
	require.NoError(t, err)
	return ch
}

func TestChannel_Transfer(t *testing.T) {
	pb := playback(conntest.IO{W: []byte{0x05, 0x00}, R: []byte{0xFF, 0x82}})
	ch := open(t, pb)

	buf := []byte{0x05, 0x00}
	require.NoError(t, ch.Transfer(context.Background(), buf))
	assert.Equal(t, []byte{0xFF, 0x82}, buf)
	assert.NoError(t, pb.Close())
}

func TestChannel_WriteDiscardsInput(t *testing.T) {
	pb := playback(
		conntest.IO{W: []byte{0x02, 0x00, 0x01, 0x00}},
		conntest.IO{W: []byte("data")},
	)
	ch := open(t, pb)

	require.NoError(t, ch.Write(context.Background(), []byte{0x02, 0x00, 0x01, 0x00}))
	require.NoError(t, ch.Write(context.Background(), []byte("data")))
	assert.NoError(t, pb.Close())
}

func TestChannel_SplitsAtPortLimit(t *testing.T) {
	pb := playback(
		conntest.IO{W: []byte{0, 0, 0, 0}, R: []byte{1, 2, 3, 4}},
		conntest.IO{W: []byte{0, 0, 0, 0}, R: []byte{5, 6, 7, 8}},
		conntest.IO{W: []byte{0, 0}, R: []byte{9, 10}},
	)
	c, err := pb.Connect(physic.MegaHertz, spi.Mode0|spi.NoCS, 8)
	require.NoError(t, err)
	ch := NewChannel(&limited{Conn: c, n: 4})

	buf := make([]byte, 10)
	require.NoError(t, ch.Transfer(context.Background(), buf))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, buf)
	assert.NoError(t, pb.Close())
}

func TestChannel_Errors(t *testing.T) {
	pb := playback(conntest.IO{W: []byte{0x06}})
	ch := open(t, pb)

	// unexpected bytes
	assert.Error(t, ch.Write(context.Background(), []byte{0x04}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ch.Write(ctx, []byte{0x06}), context.Canceled)

	// nothing to clock, nothing sent
	assert.NoError(t, ch.Transfer(context.Background(), nil))
}

func TestChannel_CloseWithoutPort(t *testing.T) {
	ch := open(t, playback())
	assert.NoError(t, ch.Close())
}
