//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom/internal/config"
	e25x "github.com/mklimuk/eeprom/memory/25xx"
)

func openTestBoard(t *testing.T) *board {
	t.Helper()
	path := os.Getenv("EEPROM_CONFIG")
	if path == "" {
		t.Skip("EEPROM_CONFIG not set")
	}
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))
	config.Normalize(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := openBoard(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Close(context.Background())) })
	return b
}

func TestBoard_LastPageRoundTrip(t *testing.T) {
	b := openTestBoard(t)
	mem := b.storage
	ctx := context.Background()

	st, err := mem.Status(ctx)
	require.NoError(t, err)
	if st.ProtectionLevel() != e25x.ProtectNone {
		t.Skipf("memory is write protected (%s)", st.ProtectionLevel())
	}

	page := mem.PageSize()
	last := mem.Capacity() - page
	saved := make([]byte, page)
	require.NoError(t, mem.Read(ctx, last, saved))
	defer func() { assert.NoError(t, mem.Write(ctx, last, saved)) }()

	pattern := bytes.Repeat([]byte{0xA5, 0x5A}, int(page/2))
	require.NoError(t, mem.Write(ctx, last, pattern))

	got := make([]byte, page)
	require.NoError(t, mem.Read(ctx, last, got))
	assert.Equal(t, pattern, got)
}
