package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v2"
)

const (
	HardwareReal       = "real"
	HardwareSimulation = "simulation"

	WatchdogDevice   = "device"
	WatchdogSoftware = "software"
	WatchdogNone     = "none"

	// PolicyCycle re-arms the watchdog once per loop cycle.
	PolicyCycle = "cycle"
	// PolicyActivity re-arms only on a proximity trigger or a direction dispatch.
	PolicyActivity = "activity"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputStatus  = "status"
)

// PinConfig names every GPIO used by the rover. Names are resolved through
// the periph.io pin registry (e.g. "GPIO23" on a Raspberry Pi).
type PinConfig struct {
	Trigger string `json:"trigger" yaml:"trigger"`
	Echo    string `json:"echo" yaml:"echo"`

	LeftForward   string `json:"left_forward" yaml:"left_forward"`
	LeftBackward  string `json:"left_backward" yaml:"left_backward"`
	LeftEnable    string `json:"left_enable" yaml:"left_enable"`
	RightForward  string `json:"right_forward" yaml:"right_forward"`
	RightBackward string `json:"right_backward" yaml:"right_backward"`
	RightEnable   string `json:"right_enable" yaml:"right_enable"`

	ConveyorForward  string `json:"conveyor_forward" yaml:"conveyor_forward"`
	ConveyorBackward string `json:"conveyor_backward" yaml:"conveyor_backward"`
	ConveyorEnable   string `json:"conveyor_enable" yaml:"conveyor_enable"`

	// Code1 is the least significant bit of the direction code.
	Code1 string `json:"code1" yaml:"code1"`
	Code2 string `json:"code2" yaml:"code2"`
	Code3 string `json:"code3" yaml:"code3"`
}

type WatchdogConfig struct {
	Type      string `json:"type" yaml:"type" env:"ROVER_WATCHDOG_TYPE"`
	Device    string `json:"device,omitempty" yaml:"device,omitempty" env:"ROVER_WATCHDOG_DEVICE"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms" env:"ROVER_WATCHDOG_TIMEOUT_MS"`
	Policy    string `json:"policy" yaml:"policy" env:"ROVER_WATCHDOG_POLICY"`
}

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type StatusConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type OutputConfig struct {
	Type   string        `json:"type" yaml:"type"`
	MQTT   *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Status *StatusConfig `json:"status,omitempty" yaml:"status,omitempty"`
}

type Config struct {
	HardwareType   string    `json:"hardware_type" yaml:"hardware_type" env:"ROVER_HARDWARE_TYPE"`
	Pins           PinConfig `json:"pins" yaml:"pins"`
	PWMFrequencyHz int       `json:"pwm_frequency_hz" yaml:"pwm_frequency_hz" env:"ROVER_PWM_FREQUENCY_HZ"`

	DriveSpeed    int     `json:"drive_speed" yaml:"drive_speed" env:"ROVER_DRIVE_SPEED"`
	ConveyorSpeed int     `json:"conveyor_speed" yaml:"conveyor_speed" env:"ROVER_CONVEYOR_SPEED"`
	ThresholdCm   float64 `json:"threshold_cm" yaml:"threshold_cm" env:"ROVER_THRESHOLD_CM"`
	NoEchoCm      float64 `json:"no_echo_cm" yaml:"no_echo_cm" env:"ROVER_NO_ECHO_CM"`
	EchoTimeoutUs int     `json:"echo_timeout_us" yaml:"echo_timeout_us" env:"ROVER_ECHO_TIMEOUT_US"`
	ConveyorRunMs int     `json:"conveyor_run_ms" yaml:"conveyor_run_ms" env:"ROVER_CONVEYOR_RUN_MS"`
	CycleMs       int     `json:"cycle_ms" yaml:"cycle_ms" env:"ROVER_CYCLE_MS"`
	StartupMs     int     `json:"startup_ms" yaml:"startup_ms" env:"ROVER_STARTUP_MS"`

	Watchdog WatchdogConfig `json:"watchdog" yaml:"watchdog"`
	Outputs  []OutputConfig `json:"outputs" yaml:"outputs"`
	Verbose  bool           `json:"verbose" yaml:"verbose" env:"ROVER_VERBOSE"`
}

func DefaultPins() PinConfig {
	return PinConfig{
		Trigger:          "GPIO23",
		Echo:             "GPIO24",
		LeftForward:      "GPIO5",
		LeftBackward:     "GPIO6",
		LeftEnable:       "GPIO12",
		RightForward:     "GPIO16",
		RightBackward:    "GPIO20",
		RightEnable:      "GPIO13",
		ConveyorForward:  "GPIO26",
		ConveyorBackward: "GPIO21",
		ConveyorEnable:   "GPIO18",
		Code1:            "GPIO17",
		Code2:            "GPIO27",
		Code3:            "GPIO22",
	}
}

func DefaultConfig() Config {
	return Config{
		HardwareType:   HardwareReal,
		Pins:           DefaultPins(),
		PWMFrequencyHz: 1000,
		DriveSpeed:     80,
		ConveyorSpeed:  80,
		ThresholdCm:    35,
		NoEchoCm:       999,
		EchoTimeoutUs:  30000,
		ConveyorRunMs:  5000,
		CycleMs:        100,
		StartupMs:      500,
		Watchdog: WatchdogConfig{
			Type:      WatchdogSoftware,
			Device:    "/dev/watchdog",
			TimeoutMs: 8000,
			Policy:    PolicyCycle,
		},
		Outputs: []OutputConfig{{Type: OutputConsole}},
	}
}

// LoadFromFlags loads configuration from the process arguments.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load builds the configuration from defaults, an optional config file
// (JSON, or YAML by extension), ROVER_* environment variables and finally
// command line flags. Each layer overrides the previous one.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("conveyor-rover", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagHardware := fs.String("hardware", "", "hardware type: real|simulation")
	flagDriveSpeed := fs.Int("drive-speed", -1, "Drive motor speed (0-255)")
	flagConveyorSpeed := fs.Int("conveyor-speed", -1, "Conveyor motor speed (0-255)")
	flagThreshold := fs.Float64("threshold-cm", math.NaN(), "Proximity threshold in cm")
	flagRunMs := fs.Int("conveyor-run-ms", -1, "Conveyor run duration in ms")
	flagCycleMs := fs.Int("cycle-ms", -1, "Control loop idle wait in ms")
	flagEchoTimeout := fs.Int("echo-timeout-us", -1, "Ultrasonic echo timeout in microseconds")
	flagWatchdog := fs.String("watchdog", "", "watchdog type: device|software|none")
	flagWatchdogPolicy := fs.String("watchdog-policy", "", "watchdog re-arm policy: cycle|activity")
	flagWatchdogTimeout := fs.Int("watchdog-timeout-ms", -1, "Watchdog timeout in ms")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,status)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic base")
	flagStatusListen := fs.String("status-listen", "", "Status HTTP listen address (e.g. :8080)")
	flagVerbose := fs.Bool("verbose", false, "Log every motor write")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := readFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	// env only descends into pointer fields
	if err := env.Parse(&cfg.Watchdog); err != nil {
		return cfg, fmt.Errorf("parse watchdog env: %w", err)
	}

	if *flagHardware != "" {
		cfg.HardwareType = *flagHardware
	}
	if *flagDriveSpeed != -1 {
		cfg.DriveSpeed = *flagDriveSpeed
	}
	if *flagConveyorSpeed != -1 {
		cfg.ConveyorSpeed = *flagConveyorSpeed
	}
	if !math.IsNaN(*flagThreshold) {
		cfg.ThresholdCm = *flagThreshold
	}
	if *flagRunMs != -1 {
		cfg.ConveyorRunMs = *flagRunMs
	}
	if *flagCycleMs != -1 {
		cfg.CycleMs = *flagCycleMs
	}
	if *flagEchoTimeout != -1 {
		cfg.EchoTimeoutUs = *flagEchoTimeout
	}
	if *flagWatchdog != "" {
		cfg.Watchdog.Type = *flagWatchdog
	}
	if *flagWatchdogPolicy != "" {
		cfg.Watchdog.Policy = *flagWatchdogPolicy
	}
	if *flagWatchdogTimeout != -1 {
		cfg.Watchdog.TimeoutMs = *flagWatchdogTimeout
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	// Apply MQTT flags to all mqtt outputs; if none exist, create one.
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		applyMQTT := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type != OutputMQTT {
				continue
			}
			if cfg.Outputs[i].MQTT == nil {
				cfg.Outputs[i].MQTT = &MQTTConfig{}
			}
			applyMQTT(cfg.Outputs[i].MQTT)
			applied = true
		}
		if !applied {
			out := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			applyMQTT(out.MQTT)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}
	if *flagStatusListen != "" {
		applied := false
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == OutputStatus {
				cfg.Outputs[i].Status = &StatusConfig{Listen: *flagStatusListen}
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputStatus, Status: &StatusConfig{Listen: *flagStatusListen}})
		}
	}
	if *flagVerbose {
		cfg.Verbose = true
	}

	cfg.applyOutputDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyOutputDefaults() {
	for i := range c.Outputs {
		switch c.Outputs[i].Type {
		case OutputMQTT:
			if c.Outputs[i].MQTT == nil {
				c.Outputs[i].MQTT = &MQTTConfig{}
			}
			m := c.Outputs[i].MQTT
			if m.Server == "" {
				m.Server = "tcp://localhost:1883"
			}
			if m.ClientID == "" {
				m.ClientID = "conveyor-rover"
			}
			if m.StateTopic == "" {
				m.StateTopic = "rover"
			}
		case OutputStatus:
			if c.Outputs[i].Status == nil {
				c.Outputs[i].Status = &StatusConfig{}
			}
			if c.Outputs[i].Status.Listen == "" {
				c.Outputs[i].Status.Listen = ":8080"
			}
		}
	}
}

// Validate reports the first configuration value the controller cannot run with.
func (c Config) Validate() error {
	switch c.HardwareType {
	case HardwareReal:
		if err := c.Pins.validate(); err != nil {
			return err
		}
	case HardwareSimulation:
	default:
		return fmt.Errorf("unknown hardware type %q", c.HardwareType)
	}
	if c.DriveSpeed < 0 || c.DriveSpeed > 255 {
		return fmt.Errorf("drive-speed must be within 0..255, got %d", c.DriveSpeed)
	}
	if c.ConveyorSpeed < 0 || c.ConveyorSpeed > 255 {
		return fmt.Errorf("conveyor-speed must be within 0..255, got %d", c.ConveyorSpeed)
	}
	if c.ThresholdCm <= 0 {
		return errors.New("threshold-cm must be > 0")
	}
	// the no-echo sentinel must never look like a nearby object
	if c.NoEchoCm <= c.ThresholdCm {
		return fmt.Errorf("no_echo_cm (%v) must be greater than threshold-cm (%v)", c.NoEchoCm, c.ThresholdCm)
	}
	if c.EchoTimeoutUs <= 0 {
		return errors.New("echo-timeout-us must be > 0")
	}
	if c.ConveyorRunMs <= 0 {
		return errors.New("conveyor-run-ms must be > 0")
	}
	if c.CycleMs <= 0 {
		return errors.New("cycle-ms must be > 0")
	}
	if c.PWMFrequencyHz <= 0 {
		return errors.New("pwm_frequency_hz must be > 0")
	}
	switch c.Watchdog.Type {
	case WatchdogDevice, WatchdogSoftware, WatchdogNone:
	default:
		return fmt.Errorf("unknown watchdog type %q", c.Watchdog.Type)
	}
	if c.Watchdog.Type != WatchdogNone && c.Watchdog.TimeoutMs <= c.CycleMs {
		return fmt.Errorf("watchdog timeout (%dms) must exceed cycle-ms (%dms)", c.Watchdog.TimeoutMs, c.CycleMs)
	}
	switch c.Watchdog.Policy {
	case PolicyCycle, PolicyActivity:
	default:
		return fmt.Errorf("unknown watchdog policy %q", c.Watchdog.Policy)
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputMQTT, OutputStatus:
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func (p PinConfig) validate() error {
	named := map[string]string{
		"trigger":           p.Trigger,
		"echo":              p.Echo,
		"left_forward":      p.LeftForward,
		"left_backward":     p.LeftBackward,
		"left_enable":       p.LeftEnable,
		"right_forward":     p.RightForward,
		"right_backward":    p.RightBackward,
		"right_enable":      p.RightEnable,
		"conveyor_forward":  p.ConveyorForward,
		"conveyor_backward": p.ConveyorBackward,
		"conveyor_enable":   p.ConveyorEnable,
		"code1":             p.Code1,
		"code2":             p.Code2,
		"code3":             p.Code3,
	}
	seen := make(map[string]string, len(named))
	for role, name := range named {
		if name == "" {
			return fmt.Errorf("pin %s is not set", role)
		}
		if other, ok := seen[name]; ok {
			return fmt.Errorf("pin %s assigned to both %s and %s", name, other, role)
		}
		seen[name] = role
	}
	return nil
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
