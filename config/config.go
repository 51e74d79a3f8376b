package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

// Device types understood by the config
const (
	DeviceDebug  = "debug"
	DeviceAPA102 = "apa102"
	DeviceWS2801 = "ws2801"
)

// Sinks for debug devices
const (
	SinkNone = "none"
	SinkLog  = "log"
	SinkTUI  = "tui"
	SinkWeb  = "web"
)

const MaxUpdateRate = 1000

type Config struct {
	Groups   []GroupConfig  `yaml:"Groups"`
	Hardware HardwareConfig `yaml:"Hardware"`
	Logging  LoggingConfig  `yaml:"Logging"`
	Web      WebConfig      `yaml:"Web"`
}

// GroupConfig describes one independently triggered device group.
type GroupConfig struct {
	UID string `yaml:"UID"`
	// Periodic updates per second; 0 means manual triggering only.
	UpdateRate float64 `yaml:"UpdateRate"`
	// Poll timeout of the update loop; 0 uses the default.
	PollTimeout time.Duration `yaml:"PollTimeout"`
	// Number of recent update durations kept for statistics.
	StatsWindow int            `yaml:"StatsWindow"`
	Devices     []DeviceConfig `yaml:"Devices"`
}

type DeviceConfig struct {
	UID      string `yaml:"UID"`
	Type     string `yaml:"Type"`
	LedCount int    `yaml:"LedCount"`
	// Only for debug devices: where updates are forwarded to.
	Sink string `yaml:"Sink,omitempty"`
	// Color all LEDs get before the first update.
	InitialRGB []float64 `yaml:"InitialRGB,omitempty"`
}

type HardwareConfig struct {
	SPILibrary       string    `yaml:"SPILibrary"`
	SPIDevice        string    `yaml:"SPIDevice"`
	SPIFrequency     int       `yaml:"SPIFrequency"`
	ColorCorrection  []float64 `yaml:"ColorCorrection"`
	APA102Brightness byte      `yaml:"APA102Brightness"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type WebConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Address string `yaml:"Address"`
}

// ReadConfig reads, defaults and validates the config file cfile.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	var conf Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &conf, nil
}

// Save writes conf as YAML to cfile.
func Save(cfile string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(cfile, data, 0o644)
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Web.Address == "" {
		c.Web.Address = ":8080"
	}
	if c.Hardware.SPILibrary == "" {
		c.Hardware.SPILibrary = "periph.io"
	}
	if c.Hardware.SPIFrequency == 0 {
		c.Hardware.SPIFrequency = 1000000
	}
	// 0 would switch APA102 strips off entirely
	if c.Hardware.APA102Brightness == 0 {
		c.Hardware.APA102Brightness = 31
	}
	for gi := range c.Groups {
		for di := range c.Groups[gi].Devices {
			dev := &c.Groups[gi].Devices[di]
			dev.Type = strings.ToLower(dev.Type)
			if dev.Type == DeviceDebug && dev.Sink == "" {
				dev.Sink = SinkLog
			}
		}
	}
}

// Validate checks the whole config and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Groups) == 0 {
		errs = append(errs, errors.New("at least one group must be configured"))
	}

	groupUIDs := make(map[string]bool)
	deviceUIDs := make(map[string]bool)
	for _, g := range c.Groups {
		if g.UID == "" {
			errs = append(errs, errors.New("group UID must not be empty"))
		} else if groupUIDs[g.UID] {
			errs = append(errs, fmt.Errorf("duplicate group UID %s", g.UID))
		}
		groupUIDs[g.UID] = true

		if g.UpdateRate < 0 || g.UpdateRate > MaxUpdateRate {
			errs = append(errs, fmt.Errorf("group %s: UpdateRate must be between 0 and %d", g.UID, MaxUpdateRate))
		}
		if g.PollTimeout < 0 {
			errs = append(errs, fmt.Errorf("group %s: PollTimeout must not be negative", g.UID))
		}
		if g.StatsWindow < 0 {
			errs = append(errs, fmt.Errorf("group %s: StatsWindow must not be negative", g.UID))
		}

		for _, d := range g.Devices {
			if d.UID == "" {
				errs = append(errs, fmt.Errorf("group %s: device UID must not be empty", g.UID))
			} else if deviceUIDs[d.UID] {
				errs = append(errs, fmt.Errorf("duplicate device UID %s", d.UID))
			}
			deviceUIDs[d.UID] = true
			errs = append(errs, d.validate()...)
		}
	}

	if err := validateRGB("Hardware.ColorCorrection", c.Hardware.ColorCorrection, 0, 10); err != nil {
		errs = append(errs, err)
	}
	if c.Hardware.APA102Brightness > 31 {
		errs = append(errs, errors.New("Hardware.APA102Brightness must be between 0 and 31"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %s", c.Logging.Format))
	}
	if c.Web.Enabled && c.Web.Address == "" {
		errs = append(errs, errors.New("Web.Address must be set when the web server is enabled"))
	}
	return errors.Join(errs...)
}

func (d DeviceConfig) validate() []error {
	var errs []error
	switch d.Type {
	case DeviceDebug:
		switch d.Sink {
		case SinkNone, SinkLog, SinkTUI, SinkWeb:
		default:
			errs = append(errs, fmt.Errorf("device %s: unknown sink %s", d.UID, d.Sink))
		}
	case DeviceAPA102, DeviceWS2801:
		if d.Sink != "" {
			errs = append(errs, fmt.Errorf("device %s: only debug devices have a sink", d.UID))
		}
	default:
		errs = append(errs, fmt.Errorf("device %s: unknown type %s", d.UID, d.Type))
	}
	if d.LedCount <= 0 {
		errs = append(errs, fmt.Errorf("device %s: LedCount must be positive", d.UID))
	}
	if err := validateRGB("device "+d.UID+" InitialRGB", d.InitialRGB, 0, 255); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// validateRGB accepts an empty slice or exactly three values in [lo, hi].
func validateRGB(name string, rgb []float64, lo, hi float64) error {
	if len(rgb) == 0 {
		return nil
	}
	if len(rgb) != 3 {
		return fmt.Errorf("%s must have 3 values, got %d", name, len(rgb))
	}
	for _, v := range rgb {
		if v < lo || v > hi {
			return fmt.Errorf("%s values must be between %g and %g", name, lo, hi)
		}
	}
	return nil
}

// Group returns the config of the group with the given uid.
func (c *Config) Group(uid string) (GroupConfig, bool) {
	for _, g := range c.Groups {
		if g.UID == uid {
			return g, true
		}
	}
	return GroupConfig{}, false
}

// HasStrips reports whether any group contains a hardware strip, in
// which case an SPI bus must be opened.
func (c *Config) HasStrips() bool {
	for _, g := range c.Groups {
		for _, d := range g.Devices {
			if d.Type == DeviceAPA102 || d.Type == DeviceWS2801 {
				return true
			}
		}
	}
	return false
}

// Sinks returns the set of sinks used by debug devices.
func (c *Config) Sinks() map[string]bool {
	ret := make(map[string]bool)
	for _, g := range c.Groups {
		for _, d := range g.Devices {
			if d.Type == DeviceDebug {
				ret[d.Sink] = true
			}
		}
	}
	return ret
}
