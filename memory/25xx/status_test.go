package e25x

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Fields(t *testing.T) {
	tests := []struct {
		given      byte
		busy       bool
		latch      bool
		protection Protection
		wpen       bool
	}{
		{0x00, false, false, ProtectNone, false},
		{0x01, true, false, ProtectNone, false},
		{0x02, false, true, ProtectNone, false},
		{0x04, false, false, ProtectQuarter, false},
		{0x08, false, false, ProtectHalf, false},
		{0x0C, false, false, ProtectAll, false},
		{0x80, false, false, ProtectNone, true},
		{0x8F, true, true, ProtectAll, true},
		{0x70, false, false, ProtectNone, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%#02x", tt.given), func(t *testing.T) {
			s := Status(tt.given)
			assert.Equal(t, tt.busy, s.Busy())
			assert.Equal(t, tt.latch, s.WriteLatchEnabled())
			assert.Equal(t, tt.protection, s.ProtectionLevel())
			assert.Equal(t, tt.wpen, s.ProtectionEnabled())
		})
	}
}

func TestStatus_RoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		s := Status(b)
		again := s.WithProtectionLevel(s.ProtectionLevel()).WithProtectionEnabled(s.ProtectionEnabled())
		assert.Equal(t, s, again, "status %#02x", b)
	}
}

func TestStatus_SetProtectionLevel(t *testing.T) {
	levels := []Protection{ProtectNone, ProtectQuarter, ProtectHalf, ProtectAll}
	for b := 0; b < 256; b++ {
		for _, l := range levels {
			s := Status(b).WithProtectionLevel(l)
			assert.Equal(t, l, s.ProtectionLevel())
			// other bits untouched
			assert.Equal(t, Status(b)&^statusBP, s&^statusBP)
		}
	}
}

func TestStatus_SetProtectionEnabled(t *testing.T) {
	s := Status(0x0E).WithProtectionEnabled(true)
	assert.Equal(t, Status(0x8E), s)
	assert.Equal(t, Status(0x0E), s.WithProtectionEnabled(false))
}

func TestParseProtection(t *testing.T) {
	for _, p := range []Protection{ProtectNone, ProtectQuarter, ProtectHalf, ProtectAll} {
		parsed, err := ParseProtection(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParseProtection("most")
	assert.Error(t, err)
}

func TestProtection_StringOutsideTwoBits(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, "Protection(0b100)", Protection(4).String())
	})
	assert.Equal(t, "level Protection(0b100)", fmt.Sprintf("level %v", Protection(4)))
}

func TestStatus_Report(t *testing.T) {
	r := Status(0x8A).Report()
	assert.Equal(t, StatusReport{
		Raw:               "0x8a",
		Busy:              false,
		WriteLatchEnabled: true,
		Protection:        "half",
		ProtectionEnabled: true,
	}, r)
}
