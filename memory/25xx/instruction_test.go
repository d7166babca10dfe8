package e25x

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ReadWriteDifferOnlyInOpcode(t *testing.T) {
	addresses := []uint32{0, 1, 0xFF, 0x100, 0x1FFFF, 0x7FFFFF, 0xFFFFFF}
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 64; i++ {
		addresses = append(addresses, uint32(rnd.Intn(1<<24)))
	}
	for _, a := range addresses {
		r := Encode(Read, a)
		w := Encode(Write, a)
		assert.Zero(t, (r^w)&addressMask, "address %#x", a)
		assert.Equal(t, byte(Read), byte(r>>24))
		assert.Equal(t, byte(Write), byte(w>>24))
		assert.Equal(t, a, r&addressMask)
	}
}

func TestEncode_DropsBitsAbove24(t *testing.T) {
	assert.Equal(t, uint32(0x03123456), Encode(Read, 0xAB123456))
}

func TestHeader(t *testing.T) {
	tests := []struct {
		ins      Instruction
		address  uint32
		expected [4]byte
	}{
		{Read, 0x000000, [4]byte{0x03, 0x00, 0x00, 0x00}},
		{Write, 0x01ABCD, [4]byte{0x02, 0x01, 0xAB, 0xCD}},
		{PageErase, 0x000100, [4]byte{0x42, 0x00, 0x01, 0x00}},
		{SectorErase, 0xFF8000, [4]byte{0xD8, 0xFF, 0x80, 0x00}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%#x", tt.ins, tt.address), func(t *testing.T) {
			assert.Equal(t, tt.expected, Header(tt.ins, tt.address))
		})
	}
}

func TestParseErase(t *testing.T) {
	for _, e := range []Erase{ErasePage, EraseSector, EraseChip} {
		parsed, err := ParseErase(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
	_, err := ParseErase("block")
	assert.Error(t, err)
}

func TestEraseAliasesOpcode(t *testing.T) {
	assert.Equal(t, byte(PageErase), byte(ErasePage))
	assert.Equal(t, byte(SectorErase), byte(EraseSector))
	assert.Equal(t, byte(ChipErase), byte(EraseChip))
}
