package e25x

import (
	"fmt"
	"strings"
)

// ManufacturerID is returned in the tail of the RDID frame by Microchip 25xx parts.
const ManufacturerID = 0x29

// Variant describes one member of the family. Values are fixed per part and
// never change at runtime.
type Variant struct {
	Name     string `yaml:"name"`
	Capacity uint32 `yaml:"capacity"`
	PageSize uint32 `yaml:"page_size"`
	// DeepSleep parts are woken before and put back to sleep after every storage operation.
	DeepSleep bool `yaml:"deep_sleep"`
	// ExtendedAddress parts answer RDID with one more dummy byte before the ID.
	ExtendedAddress bool `yaml:"extended_address"`
	// StatusLock parts get WPEN set during initialization.
	StatusLock bool `yaml:"status_lock"`
}

var (
	LC080   = Variant{Name: "25LC080", Capacity: 1 << 10, PageSize: 16, StatusLock: true}
	LC160   = Variant{Name: "25LC160", Capacity: 2 << 10, PageSize: 16, StatusLock: true}
	LC320   = Variant{Name: "25LC320", Capacity: 4 << 10, PageSize: 32, StatusLock: true}
	LC640   = Variant{Name: "25LC640", Capacity: 8 << 10, PageSize: 32, StatusLock: true}
	LC128   = Variant{Name: "25LC128", Capacity: 16 << 10, PageSize: 64, StatusLock: true}
	LC256   = Variant{Name: "25LC256", Capacity: 32 << 10, PageSize: 64, StatusLock: true}
	LC512   = Variant{Name: "25LC512", Capacity: 64 << 10, PageSize: 128, DeepSleep: true, StatusLock: true}
	LC1024  = Variant{Name: "25LC1024", Capacity: 128 << 10, PageSize: 256, DeepSleep: true, ExtendedAddress: true, StatusLock: true}
	AA1024  = Variant{Name: "25AA1024", Capacity: 128 << 10, PageSize: 256, DeepSleep: true, ExtendedAddress: true, StatusLock: true}
	presets = []Variant{LC080, LC160, LC320, LC640, LC128, LC256, LC512, LC1024, AA1024}
)

// Variants returns the known parts, smallest first.
func Variants() []Variant {
	out := make([]Variant, len(presets))
	copy(out, presets)
	return out
}

func VariantByName(name string) (Variant, error) {
	for _, v := range presets {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("unknown memory variant %q", name)
}

func (v Variant) Validate() error {
	switch v.PageSize {
	case 16, 32, 64, 128, 256:
	default:
		return fmt.Errorf("%s: page size %d is not one of 16, 32, 64, 128, 256", v.Name, v.PageSize)
	}
	if v.Capacity == 0 || v.Capacity%v.PageSize != 0 {
		return fmt.Errorf("%s: capacity %d is not a multiple of page size %d", v.Name, v.Capacity, v.PageSize)
	}
	if v.Capacity > addressMask+1 {
		return fmt.Errorf("%s: capacity %d exceeds 24-bit addressing", v.Name, v.Capacity)
	}
	return nil
}

// identityFrameLen is the RDID frame length; the ID is its last byte.
func (v Variant) identityFrameLen() int {
	if v.ExtendedAddress {
		return 5
	}
	return 4
}
