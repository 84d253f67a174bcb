package app

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"

	"dypmon/pkg/app/config"
	"dypmon/pkg/cancel"
	"dypmon/pkg/console"
	"dypmon/pkg/dyp"
	"dypmon/pkg/framereader"
	"dypmon/pkg/mqtt"
	"dypmon/pkg/port"
	"dypmon/pkg/raspberry"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up, it is the runtime context shared
// by the frame reader and the cancel controller.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Webserver.URL parameter,
	// it is nil if the web server is disabled.
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// gpio is the handler to the gpio chip and power the sensor supply line
	gpio  *raspberry.Chip
	power *raspberry.Line

	// port is the serial port of the sensor
	port *port.Handle

	// cancel is set by the controller on an interrupt, it is polled by the reader
	cancel     *cancel.Flag
	controller *cancel.Controller

	// reader reads and decodes the frames of the sensor
	reader *framereader.Reader

	// console prints each reading
	console *console.Printer

	// last is the last received measurement
	last struct {
		sync.RWMutex
		reading framereader.Reading
	}

	// published is the last measurement sent to the mqtt broker
	published struct {
		sync.Mutex
		data dyp.Measurement
	}

	webStarted bool
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	return newApp(config, nil, os.Stdout)
}

func newApp(config *config.Config, opener port.Opener, out io.Writer) (*App, error) {
	var u *url.URL

	if config.Webserver.URL != "" {
		var err error
		if u, err = url.Parse(config.Webserver.URL); err != nil {
			debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}

	flag := &cancel.Flag{}
	h := port.New(opener)

	app := &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt: mqtt.New(),

		port:       h,
		cancel:     flag,
		controller: cancel.NewController(flag, h),
		console:    console.New(out),
	}
	app.reader = framereader.New(h, flag, app)

	return app, nil
}

// Run sets up the application and reads the sensor until it is cancelled.
// It blocks until the operator interrupts or a fatal read error occurs.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	if app.urlParsed != nil {
		app.webStarted = true
		go app.runWebServer()
	}

	return app.reader.Run()
}

// init initializes the application.
func (app *App) init() (err error) {
	debug.InfoLog.Print("setup system event")
	if err = app.controller.Arm(); err != nil {
		debug.ErrorLog.Printf("can not set ctrl handler: %v", err)
		return err
	}

	if err = app.powerOn(); err != nil {
		debug.ErrorLog.Printf("can't switch on sensor: %v", err)
		return err
	}

	if err = app.port.Open(app.config.Flag.Port, app.config.Port); err != nil {
		debug.ErrorLog.Print(err)
		return err
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, app.config.MQTT.ClientID); err != nil {
		// the monitor keeps running without broker, the handler reconnects on the next message
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
	}

	// initDefaultRoutes should be always called last
	app.initDefaultRoutes()

	return nil
}

// powerOn switches on the sensor supply, if a gpio line is configured.
func (app *App) powerOn() (err error) {
	if app.config.Gpio.Power < 0 {
		return nil
	}

	if app.gpio, err = raspberry.Open(app.config.Gpio.Chip); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if app.power, err = app.gpio.PowerOn(app.config.Gpio.Power, app.config.Gpio.ActiveLow); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return nil
}

// Close releases all resources, the port is closed at most once.
func (app *App) Close() error {
	app.controller.Disarm()

	if err := app.port.Close(); err != nil {
		debug.ErrorLog.Printf("close port: %v", err)
	}

	_ = app.mqtt.Disconnect()

	if app.webStarted {
		_ = app.web.Shutdown()
	}

	if app.power != nil {
		_ = app.power.Close()
	}
	if app.gpio != nil {
		_ = app.gpio.Close()
	}

	return nil
}
