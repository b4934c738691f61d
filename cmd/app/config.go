package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Agrid-Dev/reflowctl/internal/control"
	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/pid"
	"github.com/Agrid-Dev/reflowctl/internal/pwm"
	"github.com/Agrid-Dev/reflowctl/internal/sensor"
)

const EnvPrefix = "REFLOWCTL_"

type Config struct {
	DeviceID    string            `koanf:"device_id"`
	Log         LogConfig         `koanf:"log"`
	Controllers ControllersConfig `koanf:"controllers"`

	Oven      OvenConfig      `koanf:"oven"`
	PID       PIDConfig       `koanf:"pid"`
	Control   ControlConfig   `koanf:"control"`
	Sensor    SensorConfig    `koanf:"sensor"`
	Simulator SimulatorConfig `koanf:"simulator"`
	GPIO      GPIOConfig      `koanf:"gpio"`
	Encoder   EncoderConfig   `koanf:"encoder"`
	Settings  SettingsConfig  `koanf:"settings"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `koanf:"format"` // "text" | "json"
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http"`
	MQTT   MQTTConfig   `koanf:"mqtt"`
	MODBUS ModbusConfig `koanf:"modbus"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

type OvenConfig struct {
	// TickInterval is how often the actuator is serviced.
	TickInterval    time.Duration `koanf:"tick_interval"`
	SampleInterval  time.Duration `koanf:"sample_interval"`
	PWMPeriod       time.Duration `koanf:"pwm_period"`
	JogStep         float64       `koanf:"jog_step"`
	HoldMinTemp     float64       `koanf:"hold_min_temp"`
	HoldMaxTemp     float64       `koanf:"hold_max_temp"`
	HoldMaxDuration time.Duration `koanf:"hold_max_duration"`
}

type PIDConfig struct {
	Kp               float64       `koanf:"kp"`
	Ki               float64       `koanf:"ki"`
	Kd               float64       `koanf:"kd"`
	MinOutput        float64       `koanf:"min_output"`
	MaxOutput        float64       `koanf:"max_output"`
	SampleTime       time.Duration `koanf:"sample_time"`
	AntiWindupGain   float64       `koanf:"anti_windup_gain"`
	DerivativeFilter time.Duration `koanf:"derivative_filter"`
}

type ControlConfig struct {
	LookAhead       time.Duration `koanf:"look_ahead"`
	MaxHeatRate     float64       `koanf:"max_heat_rate"`
	BaseLoadDivisor float64       `koanf:"base_load_divisor"`
	Smoothing       float64       `koanf:"smoothing"`
	StatsDecay      float64       `koanf:"stats_decay"`
	MinPlausible    float64       `koanf:"min_plausible"`
	MaxPlausible    float64       `koanf:"max_plausible"`
}

const (
	SensorSimulator = "simulator"
	SensorSerial    = "serial"
)

type SensorConfig struct {
	Source      string        `koanf:"source"` // "simulator" | "serial"
	Port        string        `koanf:"port"`
	Baud        int           `koanf:"baud"`
	MinInterval time.Duration `koanf:"min_interval"`
	FilterAlpha float64       `koanf:"filter_alpha"`
}

type SimulatorConfig struct {
	Ambient       float64       `koanf:"ambient"`
	Coefficient   float64       `koanf:"coefficient"`
	PrimaryRate   float64       `koanf:"primary_rate"`
	SecondaryRate float64       `koanf:"secondary_rate"`
	Lag           time.Duration `koanf:"lag"`
}

type GPIOConfig struct {
	Chip      string `koanf:"chip"`
	Primary   int    `koanf:"primary"`
	Secondary int    `koanf:"secondary"`
	ActiveLow bool   `koanf:"active_low"`
}

type EncoderConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Chip     string        `koanf:"chip"`
	PinA     int           `koanf:"pin_a"`
	PinB     int           `koanf:"pin_b"`
	Debounce time.Duration `koanf:"debounce"`
}

type SettingsConfig struct {
	Path string `koanf:"path"`
}

// Default returns the configuration used when nothing overrides it: the
// simulator stands in for the oven and only the HTTP controller runs.
func Default() Config {
	p := pid.DefaultParams()
	c := control.DefaultConfig()
	o := oven.DefaultConfig()
	th := sensor.DefaultThermalParams()
	return Config{
		DeviceID: "default",
		Log:      LogConfig{Level: "info", Format: "text"},
		Controllers: ControllersConfig{
			HTTP:   HTTPConfig{Enabled: true, Addr: ":8080"},
			MQTT:   MQTTConfig{PublishInterval: time.Second},
			MODBUS: ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1},
		},
		Oven: OvenConfig{
			TickInterval:    10 * time.Millisecond,
			SampleInterval:  o.SampleInterval,
			PWMPeriod:       pwm.DefaultPeriod,
			JogStep:         o.JogStep,
			HoldMinTemp:     o.HoldMinTemp,
			HoldMaxTemp:     o.HoldMaxTemp,
			HoldMaxDuration: o.HoldMaxDuration,
		},
		PID: PIDConfig{
			Kp:               p.Kp,
			Ki:               p.Ki,
			Kd:               p.Kd,
			MinOutput:        p.MinOutput,
			MaxOutput:        p.MaxOutput,
			SampleTime:       p.SampleTime,
			AntiWindupGain:   p.AntiWindupGain,
			DerivativeFilter: p.DerivativeFilter,
		},
		Control: ControlConfig{
			LookAhead:       c.LookAhead,
			MaxHeatRate:     c.MaxHeatRate,
			BaseLoadDivisor: c.BaseLoadDivisor,
			Smoothing:       c.Smoothing,
			StatsDecay:      c.StatsDecay,
			MinPlausible:    c.MinPlausible,
			MaxPlausible:    c.MaxPlausible,
		},
		Sensor: SensorConfig{
			Source:      SensorSimulator,
			Port:        "/dev/ttyUSB0",
			Baud:        sensor.DefaultBaudRate,
			MinInterval: sensor.DefaultMinInterval,
			FilterAlpha: sensor.DefaultAlpha,
		},
		Simulator: SimulatorConfig{
			Ambient:       th.Ambient,
			Coefficient:   th.Coefficient,
			PrimaryRate:   th.PrimaryRate,
			SecondaryRate: th.SecondaryRate,
			Lag:           th.Lag,
		},
		GPIO:     GPIOConfig{Chip: "gpiochip0", Primary: 17, Secondary: 27},
		Encoder:  EncoderConfig{Chip: "gpiochip0", PinA: 5, PinB: 6, Debounce: time.Millisecond},
		Settings: SettingsConfig{Path: "reflow-settings.yaml"},
	}
}

// LoadConfig layers the defaults, the config file at path (if any) and
// REFLOWCTL_* environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
			// Config file missing → use defaults
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(k, EnvPrefix)), v
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

// sections whose keys are addressed as <section>.<key> from the environment.
var envSections = map[string]bool{
	"log":       true,
	"oven":      true,
	"pid":       true,
	"control":   true,
	"sensor":    true,
	"simulator": true,
	"gpio":      true,
	"encoder":   true,
	"settings":  true,
}

// envKeyTransform maps an environment key (prefix already removed) to a
// koanf path: CONTROLLERS_HTTP_ADDR → controllers.http.addr,
// PID_SAMPLE_TIME → pid.sample_time. Anything else is lowercased as is.
func envKeyTransform(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return ""
	}
	parts := strings.Split(k, "_")

	if parts[0] == "controllers" {
		if len(parts) < 3 {
			return k
		}
		return "controllers." + parts[1] + "." + strings.Join(parts[2:], "_")
	}
	if envSections[parts[0]] && len(parts) >= 2 {
		return parts[0] + "." + strings.Join(parts[1:], "_")
	}
	return k
}

func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device_id must not be empty")
	}
	switch c.Sensor.Source {
	case SensorSimulator, SensorSerial:
	default:
		return fmt.Errorf("sensor.source must be %q or %q, got %q", SensorSimulator, SensorSerial, c.Sensor.Source)
	}
	if c.Oven.TickInterval <= 0 {
		return errors.New("oven.tick_interval must be positive")
	}
	if c.Oven.TickInterval*10 > c.Oven.PWMPeriod {
		return fmt.Errorf("oven.tick_interval %v too coarse for pwm_period %v", c.Oven.TickInterval, c.Oven.PWMPeriod)
	}
	oc := c.OvenParams()
	if err := oc.PID.Validate(); err != nil {
		return fmt.Errorf("pid: %w", err)
	}
	if err := oc.Control.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	th := c.ThermalParams()
	if err := th.Validate(); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// OvenParams assembles the session configuration.
func (c Config) OvenParams() oven.Config {
	return oven.Config{
		SampleInterval: c.Oven.SampleInterval,
		PID: pid.Params{
			Kp:               c.PID.Kp,
			Ki:               c.PID.Ki,
			Kd:               c.PID.Kd,
			MinOutput:        c.PID.MinOutput,
			MaxOutput:        c.PID.MaxOutput,
			SampleTime:       c.PID.SampleTime,
			AntiWindupGain:   c.PID.AntiWindupGain,
			DerivativeFilter: c.PID.DerivativeFilter,
		},
		Control: control.Config{
			LookAhead:       c.Control.LookAhead,
			MaxHeatRate:     c.Control.MaxHeatRate,
			BaseLoadDivisor: c.Control.BaseLoadDivisor,
			Smoothing:       c.Control.Smoothing,
			StatsDecay:      c.Control.StatsDecay,
			MinPlausible:    c.Control.MinPlausible,
			MaxPlausible:    c.Control.MaxPlausible,
		},
		JogStep:         c.Oven.JogStep,
		HoldMinTemp:     c.Oven.HoldMinTemp,
		HoldMaxTemp:     c.Oven.HoldMaxTemp,
		HoldMaxDuration: c.Oven.HoldMaxDuration,
	}
}

func (c Config) ThermalParams() sensor.ThermalParams {
	return sensor.ThermalParams{
		Ambient:       c.Simulator.Ambient,
		Coefficient:   c.Simulator.Coefficient,
		PrimaryRate:   c.Simulator.PrimaryRate,
		SecondaryRate: c.Simulator.SecondaryRate,
		Lag:           c.Simulator.Lag,
	}
}

func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the process logger from the log section.
func (c Config) NewLogger() *slog.Logger {
	level, _ := c.LogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
