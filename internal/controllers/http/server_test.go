package httpctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Agrid-Dev/reflowctl/internal/oven"
	"github.com/Agrid-Dev/reflowctl/internal/settings"
	"github.com/Agrid-Dev/reflowctl/internal/testutil"
)

func TestGET_v1_ReturnsStrings(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[map[string]any](t, rr)
	if got["mode"] != "reflow" {
		t.Fatalf("expected mode=reflow, got %v", got["mode"])
	}
	if got["phase_name"] != "Soak" {
		t.Fatalf("expected phase_name=Soak, got %v", got["phase_name"])
	}
	if got["result"] != "none" {
		t.Fatalf("expected result=none, got %v", got["result"])
	}
	if got["device_id"] != "default" {
		t.Fatalf("expected device_id=default, got %v", got["device_id"])
	}
	pid, ok := got["pid"].(map[string]any)
	if !ok {
		t.Fatalf("expected pid object, got %v", got["pid"])
	}
	if _, ok := pid["d"]; !ok {
		t.Fatalf("expected pid.d, got %v", pid)
	}
}

func TestGET_profile_Chart(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/profile", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[chartDTO](t, rr)
	if len(got.Breakpoints) != 5 {
		t.Fatalf("expected 5 breakpoints, got %d", len(got.Breakpoints))
	}
	// 180+120+70+60+90 plus one minute of margin
	if got.TotalSeconds != 580 {
		t.Fatalf("expected total 580s, got %v", got.TotalSeconds)
	}
	if got.Breakpoints[2].Phase != "Peak" || !got.Breakpoints[2].Hold {
		t.Fatalf("unexpected peak breakpoint %+v", got.Breakpoints[2])
	}
}

func TestGET_profiles(t *testing.T) {
	srv, f := newTestServer()
	f.Sel = 2

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/profiles", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[profilesDTO](t, rr)
	if got.Selected != 2 {
		t.Fatalf("expected selected=2, got %d", got.Selected)
	}
	if len(got.Slots) != settings.NumSlots || got.Slots[1].Name != "Leaded" {
		t.Fatalf("unexpected slots %+v", got.Slots)
	}
	if got.Hold != settings.DefaultHold() {
		t.Fatalf("unexpected hold %+v", got.Hold)
	}
}

func TestPOST_profiles_slot(t *testing.T) {
	srv, f := newTestServer()

	want := settings.Slot{Name: "Bismuth", PreheatTemp: 110, SoakTemp: 130, PeakTemp: 170, DwellSeconds: 40}
	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/profiles/3", want)
	assertStatus(t, rr, http.StatusOK)

	if !f.SetProfileCalled || f.SetProfileSlot != 3 || f.SetProfileArg != want {
		t.Fatalf("expected SetProfile(3, %+v), got called=%v slot=%d arg=%+v", want, f.SetProfileCalled, f.SetProfileSlot, f.SetProfileArg)
	}
	if got := decodeJSON[settings.Slot](t, rr); got != want {
		t.Fatalf("expected stored slot echoed, got %+v", got)
	}
}

func TestPOST_profiles_slot_Invalid(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/profiles/x", settings.Slot{Name: "a"})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)

	f.SetProfileErr = settings.ErrEmptyName
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/profiles/1", settings.Slot{})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_reflow(t *testing.T) {
	srv, f := newTestServer()
	f.S.Mode = oven.ModeIdle

	rr := postValueEndpoint(t, srv, "/v1/reflow", 1)
	assertStatus(t, rr, http.StatusOK)

	if !f.StartReflowCalled || f.StartReflowArg != 1 {
		t.Fatalf("expected StartReflow(1), got called=%v arg=%v", f.StartReflowCalled, f.StartReflowArg)
	}
	got := decodeJSON[map[string]any](t, rr)
	if got["profile"] != "Leaded" || got["mode"] != "reflow" {
		t.Fatalf("unexpected snapshot %v", got)
	}
}

func TestPOST_reflow_InvalidPayload(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/reflow", map[string]any{
		"slot": 1,
	})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)

	rr = postValueEndpoint(t, srv, "/v1/reflow", "lead-free")
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_reflow_ErrorFromService(t *testing.T) {
	srv, f := newTestServer()
	f.StartReflowErr = settings.ErrSlotOutOfRange

	rr := postValueEndpoint(t, srv, "/v1/reflow", 9)
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_oven(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/oven", map[string]any{
		"target":      120,
		"max_minutes": 45,
	})
	assertStatus(t, rr, http.StatusOK)

	if !f.StartHoldCalled || f.StartHoldTarget != 120 || f.StartHoldMinutes != 45 {
		t.Fatalf("expected StartHold(120, 45), got called=%v target=%v minutes=%v", f.StartHoldCalled, f.StartHoldTarget, f.StartHoldMinutes)
	}
	if got := decodeJSON[map[string]any](t, rr); got["mode"] != "hold" {
		t.Fatalf("expected mode=hold, got %v", got["mode"])
	}
}

func TestPOST_oven_UsesDefaults(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/oven", map[string]any{
		"target": 95.5,
	})
	assertStatus(t, rr, http.StatusOK)

	if f.StartHoldTarget != 95.5 || f.StartHoldMinutes != settings.DefaultHold().Minutes {
		t.Fatalf("expected StartHold(95.5, default), got target=%v minutes=%v", f.StartHoldTarget, f.StartHoldMinutes)
	}
}

func TestPOST_oven_ErrorFromService(t *testing.T) {
	srv, f := newTestServer()
	f.StartHoldErr = oven.ErrTargetOutOfRange

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/oven", map[string]any{
		"target": 999,
	})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)
}

func TestPOST_abort(t *testing.T) {
	srv, f := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/abort", nil)
	assertStatus(t, rr, http.StatusOK)

	if !f.AbortCalled {
		t.Fatal("expected Abort called")
	}
	got := decodeJSON[map[string]any](t, rr)
	if got["result"] != "aborted" || got["draining"] != true {
		t.Fatalf("unexpected snapshot %v", got)
	}
}

func TestGET_stream(t *testing.T) {
	srv, _ := newTestServer()
	srv.streamInterval = 10 * time.Millisecond

	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got snapshotDTO
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.DeviceID != "default" || got.PhaseName != "Soak" || got.MeasuredTemperature != 162.5 {
		t.Fatalf("unexpected streamed snapshot %+v", got)
	}
}

func TestGET_stream_ClosedOnShutdown(t *testing.T) {
	srv, _ := newTestServer()
	srv.streamInterval = 10 * time.Millisecond

	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got snapshotDTO
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := srv.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// the snapshot is unchanged, so the next frame can only be the close
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestGET_healthz(t *testing.T) {
	srv, _ := newTestServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "ok" {
		t.Fatalf("expected body 'ok', got %s", rr.Body.String())
	}
}

// ---- test helpers ----

func newTestServer() (*Server, *testutil.FakeOvenService) {
	f := testutil.NewFakeOvenService()
	deviceID := "default"
	return New(f, ":0", deviceID), f
}

func doJSONRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("json.Unmarshal: %v body=%s", err, rr.Body.String())
	}
	return v
}

// Handy when you only care about error responses.
func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeJSON[struct {
		Error string `json:"error"`
	}](t, rr)
	if resp.Error == "" {
		t.Fatalf("expected non-empty error field, got body=%s", rr.Body.String())
	}
	return resp.Error
}

func postValueEndpoint[T any](t *testing.T, srv *Server, path string, value T) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONRequest(t, srv.srv.Handler, http.MethodPost, path, struct {
		Value T `json:"value"`
	}{Value: value})
}
