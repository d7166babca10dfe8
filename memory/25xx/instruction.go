package e25x

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Instruction is a 25xx opcode (datasheet Table 2-1 Instruction Set).
type Instruction byte

const (
	Read             Instruction = 0x03 // READ
	Write            Instruction = 0x02 // WRITE
	WriteEnable      Instruction = 0x06 // WREN
	WriteDisable     Instruction = 0x04 // WRDI
	ReadStatus       Instruction = 0x05 // RDSR
	WriteStatus      Instruction = 0x01 // WRSR
	PageErase        Instruction = 0x42 // PE
	SectorErase      Instruction = 0xD8 // SE
	ChipErase        Instruction = 0xC7 // CE
	ReleasePowerDown Instruction = 0xAB // RDID
	DeepSleep        Instruction = 0xB9 // DPD
)

const addressMask = 0x00FFFFFF

func (i Instruction) String() string {
	switch i {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case WriteEnable:
		return "WREN"
	case WriteDisable:
		return "WRDI"
	case ReadStatus:
		return "RDSR"
	case WriteStatus:
		return "WRSR"
	case PageErase:
		return "PE"
	case SectorErase:
		return "SE"
	case ChipErase:
		return "CE"
	case ReleasePowerDown:
		return "RDID"
	case DeepSleep:
		return "DPD"
	}
	return fmt.Sprintf("Instruction(%#02x)", byte(i))
}

// Erase selects the erase command. Values alias the matching opcodes.
type Erase byte

const (
	ErasePage   = Erase(PageErase)
	EraseSector = Erase(SectorErase)
	EraseChip   = Erase(ChipErase)
)

func (e Erase) String() string {
	switch e {
	case ErasePage:
		return "page"
	case EraseSector:
		return "sector"
	case EraseChip:
		return "chip"
	}
	return fmt.Sprintf("Erase(%#02x)", byte(e))
}

// ParseErase maps page, sector or chip to the erase granularity.
func ParseErase(s string) (Erase, error) {
	switch strings.ToLower(s) {
	case "page":
		return ErasePage, nil
	case "sector":
		return EraseSector, nil
	case "chip":
		return EraseChip, nil
	}
	return 0, fmt.Errorf("unknown erase granularity %q", s)
}

// Encode packs the opcode in bits 24-31 and the 24-bit address below it.
func Encode(ins Instruction, address uint32) uint32 {
	return uint32(ins)<<24 | address&addressMask
}

// Header returns the big-endian wire form of Encode.
func Header(ins Instruction, address uint32) [4]byte {
	var h [4]byte
	binary.BigEndian.PutUint32(h[:], Encode(ins, address))
	return h
}
