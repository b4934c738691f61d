package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/ports"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string

	Logger *slog.Logger
}

type Controller struct {
	svc ports.OvenService
	cfg Config
	log *slog.Logger

	client mqtt.Client
}

func New(svc ports.OvenService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "reflowctl/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "reflowctl-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: log.With("module", "mqtt"),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("subscribe failed", "topic", topic, "error", err)
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	last := c.svc.Get()
	c.publishSnapshot()
	c.publishProfile()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			cur := c.svc.Get()
			if reflect.DeepEqual(cur, last) {
				continue
			}
			if cur.RunID != last.RunID {
				c.publishProfile()
			}
			c.publishSnapshot()
			last = cur
		}
	}
}

func (c *Controller) publishSnapshot() {
	b, _ := json.Marshal(toDTO(c.svc.Get()))
	c.client.Publish(c.topic("snapshot"), c.cfg.QoS, c.cfg.RetainSnapshot, b)
}

// publishProfile sends the breakpoints of the loaded profile, retained, so a
// late subscriber can draw the target curve.
func (c *Controller) publishProfile() {
	ch := c.svc.Chart()
	dto := profileDTO{
		MinTemp:      ch.MinTemp,
		MaxTemp:      ch.MaxTemp,
		TotalSeconds: ch.Total.Seconds(),
		StartTemp:    ch.StartTemp,
	}
	for _, b := range ch.Breakpoints {
		dto.Breakpoints = append(dto.Breakpoints, breakpointDTO{Phase: b.Phase, Seconds: b.At.Seconds(), Temp: b.Temp, Hold: b.Hold})
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic("profile"), c.cfg.QoS, true, b)
}

type snapshotDTO struct {
	RunID               string  `json:"run_id,omitempty"`
	Mode                string  `json:"mode"`
	Result              string  `json:"result"`
	Draining            bool    `json:"draining"`
	Fault               string  `json:"fault,omitempty"`
	SensorOK            bool    `json:"sensor_ok"`
	Profile             string  `json:"profile"`
	PhaseIndex          int     `json:"phase_index"`
	PhaseName           string  `json:"phase_name"`
	MeasuredTemperature float64 `json:"measured_temperature"`
	TemperatureSetpoint float64 `json:"temperature_setpoint"`
	Output              float64 `json:"output"`
	PrimaryDuty         int     `json:"primary_duty"`
	SecondaryDuty       int     `json:"secondary_duty"`
	ElapsedSeconds      float64 `json:"elapsed_s"`
}

func toDTO(s oven.Snapshot) snapshotDTO {
	return snapshotDTO{
		RunID:               s.RunID,
		Mode:                s.Mode.String(),
		Result:              s.Result.String(),
		Draining:            s.Draining,
		Fault:               s.Fault,
		SensorOK:            s.SensorOK,
		Profile:             s.Profile,
		PhaseIndex:          s.PhaseIndex,
		PhaseName:           s.PhaseName,
		MeasuredTemperature: s.Measured,
		TemperatureSetpoint: s.Setpoint,
		Output:              s.Output,
		PrimaryDuty:         s.PrimaryDuty,
		SecondaryDuty:       s.SecondaryDuty,
		ElapsedSeconds:      s.Elapsed.Seconds(),
	}
}

type breakpointDTO struct {
	Phase   string  `json:"phase"`
	Seconds float64 `json:"at_s"`
	Temp    float64 `json:"temperature"`
	Hold    bool    `json:"hold"`
}

type profileDTO struct {
	MinTemp      float64         `json:"min_temperature"`
	MaxTemp      float64         `json:"max_temperature"`
	TotalSeconds float64         `json:"total_s"`
	StartTemp    float64         `json:"start_temperature"`
	Breakpoints  []breakpointDTO `json:"breakpoints"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

type ovenCmd struct {
	Target     float64 `json:"target"`
	MaxMinutes int     `json:"max_minutes"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := c.topic("set/")
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	var err error
	switch field {
	case "reflow":
		var slot int
		if slot, err = decodeValueStrict[int](payload); err == nil {
			err = c.svc.StartReflow(slot)
		}

	case "oven":
		var cmd ovenCmd
		if cmd, err = decodeValueStrict[ovenCmd](payload); err == nil {
			err = c.svc.StartHold(cmd.Target, cmd.MaxMinutes)
		}

	case "abort":
		var v bool
		if v, err = decodeValueStrict[bool](payload); err == nil && v {
			c.svc.Abort()
		}

	default:
		return
	}
	if err != nil {
		c.log.Warn("command rejected", "topic", t, "error", err)
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
