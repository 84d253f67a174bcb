package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"dypmon/pkg/app"
	"dypmon/pkg/app/config"
	"dypmon/pkg/port"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := app.ExitUsage
	defer func() {
		os.Exit(exitCode)
	}()

	debug.SetDebug(os.Stderr, debug.Standard)

	// cfg holds the application configuration
	cfg := config.NewConfig()

	err := newCLIApp(cfg).Run(os.Args)
	if exitCode = app.ExitCode(err); exitCode != app.ExitOK {
		debug.ErrorLog.Print(err)
		if cfg.Debug.File != nil && cfg.Debug.File != os.Stderr {
			// the log goes to a file, the operator still needs the reason
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// newCLIApp defines the command line of dypmon, the parsed flags are stored in cfg.
func newCLIApp(cfg *config.Config) *cli.App {
	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "Distance monitor for DYP-A11 ultrasonic sensors with UART output",
		Version: app.VERSION,
		Description: "Read the measurement frames of the sensor from a serial port and print distance and checksum" +
			"\n verdict of each frame until Ctrl-C is pressed." +
			"\n Optionally the measurements are published to mqtt and a web service.",
		UsageText: "dypmon [--config <file>] [--log standard|debug|trace] PORT" +
			"\n   dypmon --list" +
			"\n\nEXAMPLE:" +
			"\n\tread the sensor on the first USB serial adapter" +
			"\n\t\tdypmon /dev/ttyUSB0" +
			"\n\tread the sensor on windows" +
			"\n\t\tdypmon COM3",
		ArgsUsage: "PORT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.Debug, Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
			&cli.BoolFlag{Name: "list", Destination: &cfg.Flag.List, Usage: "list the serial ports and exit"},
		},
		// errors are mapped to exit codes in main, not by cli
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(ctx *cli.Context) error {
			if cfg.Flag.List {
				return listPorts(ctx.App.Writer)
			}

			if ctx.Args().Len() != 1 {
				_ = cli.ShowAppHelp(ctx)
				return fmt.Errorf("%w: expected exactly one PORT argument, got %v", app.ErrUsage, ctx.Args().Len())
			}
			cfg.Flag.Port = ctx.Args().First()
			cfg.Flag.Default = !ctx.IsSet("config")

			if err := cfg.LoadConfig(); err != nil {
				return fmt.Errorf("%w: %w", app.ErrConfig, err)
			}

			debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
			defer func() {
				_ = cfg.Close()
			}()

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				_ = a.Close()
			}()

			debug.InfoLog.Printf("starting app %s", app.Version())
			return a.Run()
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))

	return cliApp
}

// listPorts prints the serial ports of the system.
func listPorts(w io.Writer) error {
	ports, err := port.List()
	if err != nil {
		return err
	}

	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}
