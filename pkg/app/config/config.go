package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dypmon/pkg/port"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Flag      FlagConfig      `yaml:"-"`
	Serial    SerialConfig    `yaml:"serial"`
	Port      port.Config     `yaml:"-"`
	Gpio      GpioConfig      `yaml:"gpio"`
	Debug     DebugConfig     `yaml:"debug"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Port       string
	Debug      string
	ConfigFile string
	// Default is set if ConfigFile is the default path, a missing default file is not an error.
	Default bool
	List    bool
}

// SerialConfig defines the line settings and the timeouts (ms) of the serial port
type SerialConfig struct {
	BaudRate int            `yaml:"baudrate"`
	DataBits int            `yaml:"databits"`
	Parity   string         `yaml:"parity"`
	StopBits string         `yaml:"stopbits"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig defines the port timeouts in milliseconds
type TimeoutsConfig struct {
	ReadInterval         int `yaml:"readinterval"`
	ReadTotalConstant    int `yaml:"readtotalconstant"`
	ReadTotalMultiplier  int `yaml:"readtotalmultiplier"`
	WriteTotalConstant   int `yaml:"writetotalconstant"`
	WriteTotalMultiplier int `yaml:"writetotalmultiplier"`
}

// GpioConfig defines the optional power supply line of the sensor, a negative line disables it
type GpioConfig struct {
	Chip      string `yaml:"chip"`
	Power     int    `yaml:"power"`
	ActiveLow bool   `yaml:"activelow"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection  string        `yaml:"connection"`
	ClientID    string        `yaml:"clientid"`
	Interval    time.Duration `yaml:"-"`
	IntervalInt int           `yaml:"interval"`
	// Delta is the distance change which is published immediately.
	Delta int    `yaml:"delta"`
	Topic string `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	p := port.DefaultConfig()

	return &Config{
		Flag: FlagConfig{},
		Serial: SerialConfig{
			BaudRate: p.BaudRate,
			DataBits: p.DataBits,
			Parity:   p.Parity,
			StopBits: p.StopBits,
			Timeouts: TimeoutsConfig{
				ReadInterval:         ms(p.Timeouts.ReadInterval),
				ReadTotalConstant:    ms(p.Timeouts.ReadTotalConstant),
				ReadTotalMultiplier:  ms(p.Timeouts.ReadTotalMultiplier),
				WriteTotalConstant:   ms(p.Timeouts.WriteTotalConstant),
				WriteTotalMultiplier: ms(p.Timeouts.WriteTotalMultiplier),
			},
		},
		Gpio: GpioConfig{
			Chip:  "gpiochip0",
			Power: -1,
		},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
			},
		},
		MQTT: MQTTConfig{
			Connection:  "",
			IntervalInt: 60,
			Delta:       10,
			Topic:       "dypmon/distance",
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("invalid debug config (%v, %v): %w", c.Debug.FlagString, c.Debug.FileString, err)
	}

	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second

	t := c.Serial.Timeouts
	c.Port = port.Config{
		BaudRate: c.Serial.BaudRate,
		DataBits: c.Serial.DataBits,
		Parity:   c.Serial.Parity,
		StopBits: c.Serial.StopBits,
		Timeouts: port.Timeouts{
			ReadInterval:         time.Duration(t.ReadInterval) * time.Millisecond,
			ReadTotalConstant:    time.Duration(t.ReadTotalConstant) * time.Millisecond,
			ReadTotalMultiplier:  time.Duration(t.ReadTotalMultiplier) * time.Millisecond,
			WriteTotalConstant:   time.Duration(t.WriteTotalConstant) * time.Millisecond,
			WriteTotalMultiplier: time.Duration(t.WriteTotalMultiplier) * time.Millisecond,
		},
	}

	return nil
}

func (c *Config) readConfigFile() error {
	if c.Flag.ConfigFile == "" {
		return nil
	}

	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		if c.Flag.Default && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil && err != io.EOF {
		return err
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard", "":
		c.Debug.Flag = debug.Standard
	default:
		return fmt.Errorf("invalid log level %q", c.Debug.FlagString)
	}

	switch c.Debug.FileString {
	case "stderr", "":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}

func ms(d time.Duration) int {
	return int(d / time.Millisecond)
}

// Close closes the debug file, stdout and stderr stay open.
func (c *Config) Close() error {
	if c.Debug.File == nil || c.Debug.File == os.Stdout || c.Debug.File == os.Stderr {
		return nil
	}
	return c.Debug.File.Close()
}
