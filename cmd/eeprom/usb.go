package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/spi"
)

var usbCmd = cli.Command{
	Name:  "usb",
	Usage: "inspect usb bridges",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list HID devices",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(console.Output(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")

		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()
		return nil
	},
}

var usbDetectCmd = cli.Command{
	Name:  "detect",
	Usage: "find known SPI and I2C bridges",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(console.Output(), 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "VENDOR\tPRODUCT\tDEVICE\tROLE\n")

		for _, dev := range hid.Enumerate(adapter.VendorID, adapter.ProductID) {
			_, _ = fmt.Fprintf(w, "%#x\t%#x\t%s\t%s\n", dev.VendorID, dev.ProductID, "MCP2221", "i2c, gpio")
		}

		bridges, err := spi.ListFTDI()
		if err != nil {
			console.Warnf("ftdi scan failed: %v", err)
		}
		predefined := map[uint16]string{
			spi.FT232HProductID:  "FT232H",
			spi.FT2232HProductID: "FT2232H",
		}
		for _, info := range bridges {
			if info.VenID != spi.FTDIVendorID {
				continue
			}
			if name, ok := predefined[info.DevID]; ok {
				_, _ = fmt.Fprintf(w, "%#x\t%#x\t%s\t%s\n", info.VenID, info.DevID, name, "spi, gpio")
			}
		}
		_ = w.Flush()
		return nil
	},
}
