package e25x

import (
	"context"
	"fmt"
)

// chip emulates a 25xx part on the far side of the bus: it collects the bytes
// clocked while CS is asserted, answers reads on the fly and executes the
// frame when CS rises.
type chip struct {
	mem        []byte
	pageSize   int
	sectorSize int
	id         byte
	idLen      int

	status     Status // BP and WPEN bits, WEL
	busyPolls  int    // STATUS reads left that report WIP
	busyCycles int    // busyPolls loaded by every write cycle
	asleep     bool

	cs, wp, hold bool // asserted

	frame  []byte
	ops    []Instruction // executed frames in order
	events []string      // signal edges and frames
	bursts []burst

	failOp  Instruction
	failErr error
}

type burst struct {
	addr uint32
	n    int
}

func newChip(v Variant) *chip {
	c := &chip{
		mem:        make([]byte, v.Capacity),
		pageSize:   int(v.PageSize),
		sectorSize: int(v.Capacity / 4),
		id:         ManufacturerID,
		idLen:      v.identityFrameLen(),
		busyCycles: 2,
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

func (c *chip) bus() *Bus {
	return NewBus(c, &chipPin{c: c, name: "cs"}, &chipPin{c: c, name: "wp"}, &chipPin{c: c, name: "hold"})
}

type chipPin struct {
	c    *chip
	name string
	err  error
}

func (p *chipPin) Assert(ctx context.Context) error {
	if p.err != nil {
		return p.err
	}
	p.c.signal(p.name, true)
	return nil
}

func (p *chipPin) Deassert(ctx context.Context) error {
	if p.err != nil {
		return p.err
	}
	p.c.signal(p.name, false)
	return nil
}

func (c *chip) signal(name string, asserted bool) {
	edge := "-"
	if asserted {
		edge = "+"
	}
	c.events = append(c.events, name+edge)
	switch name {
	case "cs":
		if asserted && !c.cs {
			c.frame = nil
		}
		if !asserted && c.cs {
			c.execute()
		}
		c.cs = asserted
	case "wp":
		c.wp = asserted
	case "hold":
		c.hold = asserted
	}
}

func (c *chip) clocked(buf []byte) error {
	if !c.cs {
		return fmt.Errorf("clocked %d bytes without chip-select", len(buf))
	}
	if c.hold {
		return fmt.Errorf("clocked %d bytes while on hold", len(buf))
	}
	return nil
}

func (c *chip) Transfer(ctx context.Context, buf []byte) error {
	if err := c.clocked(buf); err != nil {
		return err
	}
	for i := range buf {
		pos := len(c.frame)
		c.frame = append(c.frame, buf[i])
		buf[i] = c.out(pos)
	}
	return c.failure()
}

func (c *chip) Write(ctx context.Context, buf []byte) error {
	if err := c.clocked(buf); err != nil {
		return err
	}
	c.frame = append(c.frame, buf...)
	return c.failure()
}

func (c *chip) failure() error {
	if c.failErr != nil && len(c.frame) > 0 && Instruction(c.frame[0]) == c.failOp {
		return c.failErr
	}
	return nil
}

func (c *chip) current() Status {
	st := c.status
	if c.busyPolls > 0 {
		st |= statusWIP
	}
	return st
}

func (c *chip) address() uint32 {
	return (uint32(c.frame[1])<<16 | uint32(c.frame[2])<<8 | uint32(c.frame[3])) % uint32(len(c.mem))
}

// out is the byte shifted out on MISO at frame position pos.
func (c *chip) out(pos int) byte {
	op := Instruction(c.frame[0])
	if c.asleep && op != ReleasePowerDown {
		return 0
	}
	switch {
	case op == ReadStatus && pos >= 1:
		return byte(c.current())
	case op == Read && pos >= 4:
		return c.mem[(int(c.address())+pos-4)%len(c.mem)]
	case op == ReleasePowerDown && pos == c.idLen-1:
		return c.id
	}
	return 0
}

func (c *chip) protected(addr uint32) bool {
	size := uint32(len(c.mem))
	switch c.status.ProtectionLevel() {
	case ProtectQuarter:
		return addr >= size-size/4
	case ProtectHalf:
		return addr >= size/2
	case ProtectAll:
		return true
	}
	return false
}

func (c *chip) startCycle() {
	c.status &^= statusWEL
	c.busyPolls = c.busyCycles
}

func (c *chip) execute() {
	if len(c.frame) == 0 {
		return
	}
	op := Instruction(c.frame[0])
	c.ops = append(c.ops, op)
	c.events = append(c.events, op.String())
	if c.asleep && op != ReleasePowerDown {
		return
	}
	busy := c.busyPolls > 0
	switch op {
	case ReadStatus:
		if c.busyPolls > 0 {
			c.busyPolls--
		}
	case WriteEnable:
		if !busy {
			c.status |= statusWEL
		}
	case WriteDisable:
		c.status &^= statusWEL
	case WriteStatus:
		locked := c.status.ProtectionEnabled() && c.wp
		if len(c.frame) != 2 || busy || !c.status.WriteLatchEnabled() || locked {
			return
		}
		c.status = c.status&(statusWEL) | Status(c.frame[1])&(statusBP|statusWPEN)
		c.startCycle()
	case Write:
		if len(c.frame) < 5 || busy || !c.status.WriteLatchEnabled() {
			return
		}
		addr := c.address()
		payload := c.frame[4:]
		c.bursts = append(c.bursts, burst{addr: addr, n: len(payload)})
		base := int(addr) - int(addr)%c.pageSize
		for i, b := range payload {
			a := base + (int(addr)-base+i)%c.pageSize
			if !c.protected(uint32(a)) {
				c.mem[a] = b
			}
		}
		c.startCycle()
	case PageErase, SectorErase:
		if len(c.frame) != 4 || busy || !c.status.WriteLatchEnabled() {
			return
		}
		unit := c.pageSize
		if op == SectorErase {
			unit = c.sectorSize
		}
		base := int(c.address()) - int(c.address())%unit
		for a := base; a < base+unit; a++ {
			if !c.protected(uint32(a)) {
				c.mem[a] = 0xFF
			}
		}
		c.startCycle()
	case ChipErase:
		if len(c.frame) != 4 || busy || !c.status.WriteLatchEnabled() || c.status.ProtectionLevel() != ProtectNone {
			return
		}
		for i := range c.mem {
			c.mem[i] = 0xFF
		}
		c.startCycle()
	case DeepSleep:
		c.asleep = true
	case ReleasePowerDown:
		c.asleep = false
	}
}

func (c *chip) count(op Instruction) int {
	n := 0
	for _, o := range c.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (c *chip) reset() {
	c.ops = nil
	c.events = nil
	c.bursts = nil
}
