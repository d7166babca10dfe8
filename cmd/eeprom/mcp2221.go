package main

import (
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "talk to an MCP2221 usb bridge",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Usage: "adapter index when several are attached"},
	},
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
	},
}

func openAdapter(c *cli.Context) *adapter.MCP2221 {
	return adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
}

func encode(v interface{}) error {
	enc := yaml.NewEncoder(console.Output())
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the chip status",
	Action: func(c *cli.Context) error {
		status, err := openAdapter(c).Status(c.Context)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current I2C transfer and free the bus",
	Action: func(c *cli.Context) error {
		status, err := openAdapter(c).ReleaseBus(c.Context)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

type gpioOutput struct {
	Parameters adapter.MCP2221GPIOParameters `yaml:"parameters"`
	Values     adapter.MCP2221GPIOValues     `yaml:"values"`
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print the GP line designations and levels",
	Action: func(c *cli.Context) error {
		a := openAdapter(c)
		params, err := a.GetGPIOParameters(c.Context)
		if err != nil {
			return console.Exit(1, "could not read gpio parameters: %s", console.Red(err))
		}
		values, err := a.ReadGPIO(c.Context)
		if err != nil {
			return console.Exit(1, "could not read gpio values: %s", console.Red(err))
		}
		return encode(gpioOutput{Parameters: params, Values: values})
	},
}
