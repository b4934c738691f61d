package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"

	"github.com/Agrid-Dev/reflowctl/cmd/app"
	"github.com/Agrid-Dev/reflowctl/internal/clock"
	httpctrl "github.com/Agrid-Dev/reflowctl/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/reflowctl/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/reflowctl/internal/controllers/mqtt"
	"github.com/Agrid-Dev/reflowctl/internal/encoder"
	"github.com/Agrid-Dev/reflowctl/internal/gpio"
	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/pwm"
	"github.com/Agrid-Dev/reflowctl/internal/sensor"
	"github.com/Agrid-Dev/reflowctl/internal/service"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := cfg.NewLogger()
	slog.SetDefault(log)

	if err := serve(cfg, log); err != nil {
		log.Error("exited", "error", err)
		os.Exit(1)
	}
}

// hardware is what the session drives: a temperature source and two outputs.
type hardware struct {
	reader             sensor.Reader
	primary, secondary pwm.Output
	closers            []io.Closer
}

func (h *hardware) Close() {
	for _, c := range h.closers {
		_ = c.Close()
	}
}

func openHardware(cfg app.Config, clk clock.Source, log *slog.Logger) (*hardware, error) {
	if cfg.Sensor.Source == app.SensorSimulator {
		sim, err := sensor.NewSimulator(cfg.ThermalParams(), clk)
		if err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
		log.Info("using simulated oven", "ambient", cfg.Simulator.Ambient)
		return &hardware{reader: sim, primary: sim.Primary(), secondary: sim.Secondary()}, nil
	}

	h := &hardware{}
	sr, err := sensor.OpenSerial(cfg.Sensor.Port, cfg.Sensor.Baud, clk, log)
	if err != nil {
		return nil, err
	}
	h.reader = sr
	h.closers = append(h.closers, sr)

	p, err := gpio.NewRealPin(cfg.GPIO.Chip, cfg.GPIO.Primary, cfg.GPIO.ActiveLow)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("primary output: %w", err)
	}
	h.primary = p
	h.closers = append(h.closers, p)

	s, err := gpio.NewRealPin(cfg.GPIO.Chip, cfg.GPIO.Secondary, cfg.GPIO.ActiveLow)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("secondary output: %w", err)
	}
	h.secondary = s
	h.closers = append(h.closers, s)

	log.Info("using serial thermocouple", "port", cfg.Sensor.Port, "chip", cfg.GPIO.Chip,
		"primary", cfg.GPIO.Primary, "secondary", cfg.GPIO.Secondary)
	return h, nil
}

func serve(cfg app.Config, log *slog.Logger) error {
	clk := clock.NewSystem()

	hw, err := openHardware(cfg, clk, log)
	if err != nil {
		return err
	}
	defer hw.Close()

	deps := oven.Deps{
		Clock:    clk,
		Sensor:   sensor.NewFiltered(hw.reader, clk, cfg.Sensor.MinInterval, cfg.Sensor.FilterAlpha),
		Actuator: pwm.New(hw.primary, hw.secondary, cfg.Oven.PWMPeriod, clk),
		Logger:   log,
	}
	if cfg.Encoder.Enabled {
		counter := &encoder.Counter{}
		w, err := encoder.Watch(cfg.Encoder.Chip, cfg.Encoder.PinA, cfg.Encoder.PinB, cfg.Encoder.Debounce, counter)
		if err != nil {
			return fmt.Errorf("encoder: %w", err)
		}
		defer w.Close()
		deps.Jog = counter
	}

	ov, err := oven.New(cfg.OvenParams(), deps)
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return err
	}
	svc := service.New(ov, store, log)

	var g run.Group
	ctx := context.Background()

	addActor(&g, ctx, func(ctx context.Context) error {
		return ov.Run(ctx, cfg.Oven.TickInterval)
	})

	if c := cfg.Controllers.HTTP; c.Enabled {
		srv := httpctrl.New(svc, c.Addr, cfg.DeviceID)
		log.Info("http listening", "addr", c.Addr)
		addActor(&g, ctx, srv.Run)
	}

	if c := cfg.Controllers.MQTT; c.Enabled {
		mc, err := mqttctrl.New(svc, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       c.BrokerURL,
			ClientID:        c.ClientID,
			BaseTopic:       c.BaseTopic,
			QoS:             c.QoS,
			RetainSnapshot:  c.RetainSnapshot,
			PublishInterval: c.PublishInterval,
			Username:        c.Username,
			Password:        c.Password,
			Logger:          log,
		})
		if err != nil {
			return err
		}
		log.Info("mqtt enabled", "broker", c.BrokerURL)
		addActor(&g, ctx, mc.Run)
	}

	if c := cfg.Controllers.MODBUS; c.Enabled {
		mb, err := modbusctrl.New(svc, modbusctrl.Config{
			DeviceID: cfg.DeviceID,
			Addr:     c.Addr,
			UnitID:   c.UnitID,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		log.Info("modbus listening", "addr", c.Addr, "unit_id", c.UnitID)
		addActor(&g, ctx, mb.Run)
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) || errors.Is(err, context.Canceled) {
		log.Info("shutting down", "reason", err)
		return nil
	}
	return err
}

// addActor runs fn until the group interrupts it.
func addActor(g *run.Group, parent context.Context, fn func(context.Context) error) {
	ctx, cancel := context.WithCancel(parent)
	g.Add(func() error {
		return fn(ctx)
	}, func(error) {
		cancel()
	})
}
