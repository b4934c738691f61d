package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/ports"
	"github.com/Agrid-Dev/reflowctl/internal/profile"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
)

const defaultStreamInterval = 500 * time.Millisecond

type Server struct {
	svc      ports.OvenService
	srv      *http.Server
	deviceID string

	upgrader       websocket.Upgrader
	streamInterval time.Duration
	// closed on shutdown; streams are hijacked and not tracked by http.Server
	done chan struct{}
}

// New returns a runnable server.
func New(svc ports.OvenService, addr string, deviceID string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc:            svc,
		deviceID:       deviceID,
		streamInterval: defaultStreamInterval,
		done:           make(chan struct{}),
	}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/profile", s.handleGetChart)
	mux.HandleFunc("GET /v1/profiles", s.handleGetProfiles)
	mux.HandleFunc("GET /v1/stream", s.handleStream)

	// Write
	mux.HandleFunc("POST /v1/profiles/{slot}", s.handlePostProfile)
	mux.HandleFunc("POST /v1/reflow", s.handlePostReflow)
	mux.HandleFunc("POST /v1/oven", s.handlePostOven)
	mux.HandleFunc("POST /v1/abort", s.handlePostAbort)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv.RegisterOnShutdown(func() { close(s.done) })
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type pidDTO struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

type snapshotDTO struct {
	DeviceID    string `json:"device_id"`
	RunID       string `json:"run_id,omitempty"`
	Mode        string `json:"mode"`
	Result      string `json:"result"`
	Draining    bool   `json:"draining"`
	Fault       string `json:"fault,omitempty"`
	SensorOK    bool   `json:"sensor_ok"`
	SensorError string `json:"sensor_error,omitempty"`

	Profile        string  `json:"profile"`
	PhaseIndex     int     `json:"phase_index"`
	PhaseName      string  `json:"phase_name"`
	PhaseStartTemp float64 `json:"phase_start_temperature"`
	PhaseEndTemp   float64 `json:"phase_end_temperature"`

	MeasuredTemperature float64 `json:"measured_temperature"`
	TemperatureSetpoint float64 `json:"temperature_setpoint"`
	TrackingError       float64 `json:"tracking_error"`
	Output              float64 `json:"output"`
	FeedForward         float64 `json:"feedforward"`
	PID                 pidDTO  `json:"pid"`

	PrimaryDuty   int  `json:"primary_duty"`
	SecondaryDuty int  `json:"secondary_duty"`
	PrimaryOn     bool `json:"primary_on"`
	SecondaryOn   bool `json:"secondary_on"`

	ErrorMeanAbs     float64 `json:"error_mean_abs"`
	ErrorDecayedMax  float64 `json:"error_decayed_max"`
	ElapsedSeconds   float64 `json:"elapsed_s"`
	HoldRemainingSec float64 `json:"hold_remaining_s"`
}

func toDTO(s oven.Snapshot) snapshotDTO {
	return snapshotDTO{
		RunID:               s.RunID,
		Mode:                s.Mode.String(),
		Result:              s.Result.String(),
		Draining:            s.Draining,
		Fault:               s.Fault,
		SensorOK:            s.SensorOK,
		SensorError:         s.SensorError,
		Profile:             s.Profile,
		PhaseIndex:          s.PhaseIndex,
		PhaseName:           s.PhaseName,
		PhaseStartTemp:      s.PhaseStartTemp,
		PhaseEndTemp:        s.PhaseEndTemp,
		MeasuredTemperature: s.Measured,
		TemperatureSetpoint: s.Setpoint,
		TrackingError:       s.Error,
		Output:              s.Output,
		FeedForward:         s.FeedForward,
		PID:                 pidDTO{P: s.Terms.P, I: s.Terms.I, D: s.Terms.D},
		PrimaryDuty:         s.PrimaryDuty,
		SecondaryDuty:       s.SecondaryDuty,
		PrimaryOn:           s.PrimaryOn,
		SecondaryOn:         s.SecondaryOn,
		ErrorMeanAbs:        s.ErrorStats.MeanAbs,
		ErrorDecayedMax:     s.ErrorStats.DecayedMax,
		ElapsedSeconds:      s.Elapsed.Seconds(),
		HoldRemainingSec:    s.HoldRemaining.Seconds(),
	}
}

type breakpointDTO struct {
	Phase   string  `json:"phase"`
	Seconds float64 `json:"at_s"`
	Temp    float64 `json:"temperature"`
	Hold    bool    `json:"hold"`
}

type chartDTO struct {
	MinTemp      float64         `json:"min_temperature"`
	MaxTemp      float64         `json:"max_temperature"`
	TotalSeconds float64         `json:"total_s"`
	StartTemp    float64         `json:"start_temperature"`
	Breakpoints  []breakpointDTO `json:"breakpoints"`
}

func toChartDTO(c profile.ChartSpec) chartDTO {
	dto := chartDTO{
		MinTemp:      c.MinTemp,
		MaxTemp:      c.MaxTemp,
		TotalSeconds: c.Total.Seconds(),
		StartTemp:    c.StartTemp,
		Breakpoints:  make([]breakpointDTO, 0, len(c.Breakpoints)),
	}
	for _, b := range c.Breakpoints {
		dto.Breakpoints = append(dto.Breakpoints, breakpointDTO{
			Phase:   b.Phase,
			Seconds: b.At.Seconds(),
			Temp:    b.Temp,
			Hold:    b.Hold,
		})
	}
	return dto
}

type profilesDTO struct {
	Selected int             `json:"selected"`
	Slots    []settings.Slot `json:"slots"`
	Hold     settings.Hold   `json:"hold"`
}

type ovenReq struct {
	Target     *float64 `json:"target"`
	MaxMinutes *int     `json:"max_minutes"`
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handleGetChart(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toChartDTO(s.svc.Chart()))
}

func (s *Server) handleGetProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, profilesDTO{
		Selected: s.svc.Selected(),
		Slots:    s.svc.Profiles(),
		Hold:     s.svc.HoldDefaults(),
	})
}

func (s *Server) handlePostProfile(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "slot must be an integer")
		return
	}
	var p settings.Slot
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	stored, err := s.svc.SetProfile(slot, p)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handlePostReflow(w http.ResponseWriter, r *http.Request) {
	// body: {"value": 0}
	postValue(s, w, r, func(slot int) error {
		return s.svc.StartReflow(slot)
	})
}

func (s *Server) handlePostOven(w http.ResponseWriter, r *http.Request) {
	// body: {"target": 80, "max_minutes": 60}; a missing field falls back to the stored default
	var req ovenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	def := s.svc.HoldDefaults()
	target, minutes := float64(def.TargetTemp), def.Minutes
	if req.Target != nil {
		target = *req.Target
	}
	if req.MaxMinutes != nil {
		minutes = *req.MaxMinutes
	}
	if err := s.svc.StartHold(target, minutes); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondSnapshot(w)
}

func (s *Server) handlePostAbort(w http.ResponseWriter, _ *http.Request) {
	s.svc.Abort()
	s.respondSnapshot(w)
}

// handleStream pushes a snapshot over a websocket whenever it changes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping are handled.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var last oven.Snapshot
	first := true
	for {
		cur := s.svc.Get()
		if first || !reflect.DeepEqual(cur, last) {
			dto := toDTO(cur)
			dto.DeviceID = s.deviceID
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(dto); err != nil {
				return
			}
			last = cur
			first = false
		}
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
