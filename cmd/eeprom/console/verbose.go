package console

import (
	"context"

	"github.com/mklimuk/eeprom/eectx"
)

// SetVerbose marks ctx so that adapters dump the raw frames they exchange.
func SetVerbose(parent context.Context, value bool) context.Context {
	return eectx.SetVerbose(parent, value)
}

func IsVerbose(ctx context.Context) bool {
	return eectx.IsVerbose(ctx)
}
