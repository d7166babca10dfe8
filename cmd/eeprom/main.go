package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "eeprom"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "25xx SPI EEPROM cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "board description (yaml)",
			EnvVars: []string{"EEPROM_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "variant",
			Usage: "memory part, e.g. 25LC1024 (see 'variants')",
		},
		&cli.StringFlag{
			Name:  "spi",
			Usage: "spidev port name, or 'ftdi' for an FT232H bridge",
		},
		&cli.Int64Flag{
			Name:  "speed",
			Usage: "spi clock in Hz",
		},
		&cli.StringFlag{
			Name:  "cs",
			Usage: "chip-select line, driver:line[:high] (gpio:GPIO8, ftdi:3, mcp23017:0, mcp2221:1, nanopi:24)",
		},
		&cli.StringFlag{
			Name:  "wp",
			Usage: "write-protect line, same format as --cs, or 'none'",
		},
		&cli.StringFlag{
			Name:  "hold",
			Usage: "hold line, same format as --cs, or 'none'",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		ctx.Context = console.SetVerbose(ctx.Context, ctx.Bool("verbose"))
		return nil
	}
	app.Commands = cli.Commands{
		&variantsCmd,
		&statusCmd,
		&readCmd,
		&writeCmd,
		&eraseCmd,
		&protectCmd,
		&usbCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		console.Errorf("%v", err)
		return 1
	}
	return 0
}
