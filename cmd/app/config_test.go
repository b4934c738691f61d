package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvKeyTransform_TopLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DEVICE_ID", "device_id"},
		{"CONTROLLER", "controller"},
		{"ADDR", "addr"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyTransform_Controllers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CONTROLLERS_HTTP_ADDR", "controllers.http.addr"},
		{"CONTROLLERS_MQTT_PUBLISH_INTERVAL", "controllers.mqtt.publish_interval"},
		{"CONTROLLERS_MODBUS_UNIT_ID", "controllers.modbus.unit_id"},
		{"CONTROLLERS_HTTP", "controllers_http"},   // not enough parts -> fallback
		{"CONTROLLERS__ADDR", "controllers..addr"}, // edge case
		{"controllers_HTTP_addr", "controllers.http.addr"},
		{"CONTROLLERS_MQTT_RETAIN_SNAPSHOT", "controllers.mqtt.retain_snapshot"},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyTransform_Sections(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PID_KP", "pid.kp"},
		{"PID_SAMPLE_TIME", "pid.sample_time"},
		{"CONTROL_MAX_HEAT_RATE", "control.max_heat_rate"},
		{"OVEN_PWM_PERIOD", "oven.pwm_period"},
		{"SENSOR_SOURCE", "sensor.source"},
		{"SIMULATOR_PRIMARY_RATE", "simulator.primary_rate"},
		{"GPIO_ACTIVE_LOW", "gpio.active_low"},
		{"ENCODER_PIN_A", "encoder.pin_a"},
		{"SETTINGS_PATH", "settings.path"},
		{"LOG_LEVEL", "log.level"},
		{"PID", "pid"},   // not enough parts -> passthrough
		{"OVEN", "oven"}, // not enough parts -> passthrough
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "default" {
		t.Fatalf("expected device_id=default, got %q", cfg.DeviceID)
	}
	if !cfg.Controllers.HTTP.Enabled || cfg.Controllers.HTTP.Addr != ":8080" {
		t.Fatalf("expected http enabled on :8080, got %+v", cfg.Controllers.HTTP)
	}
	if cfg.Sensor.Source != SensorSimulator {
		t.Fatalf("expected simulator source, got %q", cfg.Sensor.Source)
	}
	if cfg.PID.SampleTime != 4*time.Second || cfg.PID.Kd != 45 {
		t.Fatalf("unexpected pid defaults %+v", cfg.PID)
	}
	if cfg.Oven.PWMPeriod != time.Second {
		t.Fatalf("expected 1s pwm period, got %v", cfg.Oven.PWMPeriod)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "default" {
		t.Fatalf("expected defaults, got %q", cfg.DeviceID)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
device_id: bench
controllers:
  mqtt:
    enabled: true
    broker_url: tcp://broker:1883
pid:
  kp: 2.5
  sample_time: 2s
sensor:
  source: serial
  port: /dev/ttyACM0
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REFLOWCTL_PID_KP", "3")
	t.Setenv("REFLOWCTL_CONTROLLERS_HTTP_ADDR", ":9090")
	t.Setenv("REFLOWCTL_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "bench" {
		t.Fatalf("expected device_id from file, got %q", cfg.DeviceID)
	}
	if !cfg.Controllers.MQTT.Enabled || cfg.Controllers.MQTT.BrokerURL != "tcp://broker:1883" {
		t.Fatalf("unexpected mqtt %+v", cfg.Controllers.MQTT)
	}
	if cfg.PID.Kp != 3 {
		t.Fatalf("expected env to win for pid.kp, got %v", cfg.PID.Kp)
	}
	if cfg.PID.SampleTime != 2*time.Second {
		t.Fatalf("expected pid.sample_time from file, got %v", cfg.PID.SampleTime)
	}
	if cfg.PID.Kd != 45 {
		t.Fatalf("expected untouched default pid.kd, got %v", cfg.PID.Kd)
	}
	if cfg.Controllers.HTTP.Addr != ":9090" {
		t.Fatalf("expected env http addr, got %q", cfg.Controllers.HTTP.Addr)
	}
	if cfg.Sensor.Source != SensorSerial || cfg.Sensor.Port != "/dev/ttyACM0" {
		t.Fatalf("unexpected sensor %+v", cfg.Sensor)
	}
	if l, _ := cfg.LogLevel(); l != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", l)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"oven": {"hold_max_temp": 200}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.OvenParams().HoldMaxTemp; got != 200 {
		t.Fatalf("expected hold_max_temp=200, got %v", got)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"extension", "config.toml", "device_id = 'x'"},
		{"sensor source", "config.yaml", "sensor:\n  source: thermistor\n"},
		{"pid limits", "config.yaml", "pid:\n  min_output: 100\n  max_output: 0\n"},
		{"smoothing", "config.yaml", "control:\n  smoothing: 1.5\n"},
		{"tick too coarse", "config.yaml", "oven:\n  tick_interval: 500ms\n"},
		{"log level", "config.yaml", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
