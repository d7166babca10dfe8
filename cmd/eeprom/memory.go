package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	e25x "github.com/mklimuk/eeprom/memory/25xx"
)

var variantsCmd = cli.Command{
	Name:  "variants",
	Usage: "list supported memory parts",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yaml", Usage: "print as yaml"},
	},
	Action: func(c *cli.Context) error {
		if c.Bool("yaml") {
			enc := yaml.NewEncoder(console.Output())
			defer func() { _ = enc.Close() }()
			if err := enc.Encode(e25x.Variants()); err != nil {
				return console.Exit(1, "encoding error: %s", console.Red(err))
			}
			return nil
		}
		w := tabwriter.NewWriter(console.Output(), 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "NAME\tCAPACITY\tPAGE\tDEEP SLEEP\n")
		for _, v := range e25x.Variants() {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", v.Name, v.Capacity, v.PageSize, v.DeepSleep)
		}
		_ = w.Flush()
		return nil
	},
}

type statusOutput struct {
	Variant  string            `yaml:"variant"`
	Capacity uint32            `yaml:"capacity"`
	PageSize uint32            `yaml:"page_size"`
	Status   e25x.StatusReport `yaml:"status"`
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "read the STATUS register",
	Action: withStorage(func(c *cli.Context, mem *e25x.Storage) error {
		st, err := mem.Status(c.Context)
		if err != nil {
			return console.Exit(1, "could not read status: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(console.Output())
		defer func() { _ = enc.Close() }()
		err = enc.Encode(statusOutput{
			Variant:  mem.Variant().Name,
			Capacity: mem.Capacity(),
			PageSize: mem.PageSize(),
			Status:   st.Report(),
		})
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	}),
}

var addressFlag = &cli.StringFlag{
	Name:    "address",
	Aliases: []string{"a"},
	Usage:   "memory address (decimal or 0x hex)",
	Value:   "0",
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read memory contents",
	Flags: []cli.Flag{
		addressFlag,
		&cli.IntFlag{Name: "length", Aliases: []string{"n"}, Usage: "number of bytes to read, 0 reads to the end", Value: 16},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write raw bytes to this file instead of a hex dump"},
	},
	Action: withStorage(func(c *cli.Context, mem *e25x.Storage) error {
		addr, err := parseAddress(c.String("address"))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		length := c.Int("length")
		if length < 0 {
			return console.Exit(1, "length out of range: %d", length)
		}
		if length == 0 && addr < mem.Capacity() {
			length = int(mem.Capacity() - addr)
		}
		buf := make([]byte, length)
		if err := mem.Read(c.Context, addr, buf); err != nil {
			return console.Exit(1, "read failed: %s", console.Red(err))
		}
		if out := c.String("output"); out != "" {
			if err := os.WriteFile(out, buf, 0o644); err != nil {
				return console.Exit(1, "could not write %s: %v", out, err)
			}
			console.PInfof(console.PictoNotebook, "%d bytes from %#06x saved to %s", len(buf), addr, out)
			return nil
		}
		console.Printf("%s", dump(addr, buf))
		return nil
	}),
}

var writeCmd = cli.Command{
	Name:  "write",
	Usage: "write bytes to memory",
	Flags: []cli.Flag{
		addressFlag,
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex bytes to write (e.g. '01FF23')"},
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "write the contents of this file"},
	},
	Action: withStorage(func(c *cli.Context, mem *e25x.Storage) error {
		addr, err := parseAddress(c.String("address"))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		var data []byte
		switch {
		case c.String("data") != "" && c.String("file") != "":
			return console.Exit(1, "use either --data or --file")
		case c.String("data") != "":
			data, err = hex.DecodeString(c.String("data"))
			if err != nil {
				return console.Exit(1, "invalid data hex string: %v", err)
			}
		case c.String("file") != "":
			data, err = os.ReadFile(c.String("file"))
			if err != nil {
				return console.Exit(1, "could not read %s: %v", c.String("file"), err)
			}
		default:
			return console.Exit(1, "nothing to write, use --data or --file")
		}
		if err := mem.Write(c.Context, addr, data); err != nil {
			return console.Exit(1, "write failed: %s", console.Red(err))
		}
		chunks := e25x.Chunks(addr, len(data), mem.PageSize())
		console.PInfof(console.PictoPin, "wrote %d bytes at %#06x in %d page bursts", len(data), addr, len(chunks))
		return nil
	}),
}

var eraseCmd = cli.Command{
	Name:  "erase",
	Usage: "erase a page, a sector or the whole chip",
	Flags: []cli.Flag{
		addressFlag,
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "page, sector or chip", Value: "page"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask before a chip erase"},
	},
	Action: withStorage(func(c *cli.Context, mem *e25x.Storage) error {
		mode, err := e25x.ParseErase(c.String("mode"))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		addr, err := parseAddress(c.String("address"))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		if mode == e25x.EraseChip && !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("erase all %d bytes of %s?", mem.Capacity(), mem.Variant().Name))
			if err != nil {
				return console.Exit(1, "prompt failed: %v", err)
			}
			if !ok {
				console.PInfof(console.PictoStop, "chip erase cancelled")
				return nil
			}
		}
		if err := mem.Erase(c.Context, addr, mode); err != nil {
			return console.Exit(1, "erase failed: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "%s erase done", mode)
		return nil
	}),
}

var protectCmd = cli.Command{
	Name:      "protect",
	Usage:     "set the write protected area (none, quarter, half, all)",
	ArgsUsage: "<level>",
	Action: withStorage(func(c *cli.Context, mem *e25x.Storage) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		level, err := e25x.ParseProtection(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		if err := mem.SetProtection(c.Context, level); err != nil {
			return console.Exit(1, "could not set protection: %s", console.Red(err))
		}
		console.PInfof(console.PictoKey, "protection set to %s", console.Bold(level))
		return nil
	}),
}

func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse address %q: %w", s, err)
	}
	return uint32(v), nil
}

// dump renders buf like hexdump -C with offsets relative to the memory.
func dump(addr uint32, buf []byte) string {
	var out []byte
	for i := 0; i < len(buf); i += 16 {
		end := min(i+16, len(buf))
		line := hex.Dump(buf[i:end])
		// hex.Dump numbers lines from zero
		out = fmt.Appendf(out, "%08x%s", addr+uint32(i), line[8:])
	}
	return string(out)
}
