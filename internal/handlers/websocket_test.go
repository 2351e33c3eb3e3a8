package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"reflow_oven/internal/models"
	"reflow_oven/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 1 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", 1 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 1 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

// --- websocket integration tests ---

func TestWebSocket_SnapshotStream_InitialAndPeriodic(t *testing.T) {
	mon := &mockMonitoring{
		status: models.RunStatus{
			RunID:     "run-1",
			State:     models.StateRunning,
			ElapsedS:  42,
			Running:   true,
			ProfileID: "p1",
			DeviceID:  "simulator_1",
			LastPower: 60,
		},
		targets: models.Targets{TempC: 150, PowerPct: 60},
		samples: []models.Sample{{TimeS: 41, TempC: 148.5}},
	}
	s := &service.Service{Monitoring: mon}

	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	q := u.Query()
	q.Set("interval_ms", "20") // fast ticks for the test
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	type envelope struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if env.Type != "snapshot" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var snap models.RunSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Status.State != models.StateRunning || snap.Status.ElapsedS != 42 || snap.Targets.TempC != 150 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.LastSample == nil || snap.LastSample.TempC != 148.5 {
		t.Fatalf("unexpected last sample: %+v", snap.LastSample)
	}

	// A later tick reflects the new state.
	mon.mu.Lock()
	mon.status.State = models.StateRunOut
	mon.status.Running = false
	mon.status.RunOut = true
	mon.mu.Unlock()

	deadline := time.Now().Add(1 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		env = envelope{}
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read next: %v", err)
		}
		if env.Type != "snapshot" {
			t.Fatalf("expected type=snapshot, got %+v", env)
		}
		snap = models.RunSnapshot{}
		_ = json.Unmarshal(env.Data, &snap)
		if snap.Status.State == models.StateRunOut {
			if !snap.Status.RunOut || snap.Status.Running {
				t.Fatalf("unexpected run-out flags: %+v", snap.Status)
			}
			return
		}
	}
}

func TestWebSocket_IdleSnapshotHasNoSample(t *testing.T) {
	mon := &mockMonitoring{status: models.RunStatus{State: models.StateIdle}, targets: models.Targets{TempC: 25}}
	s := &service.Service{Monitoring: mon}

	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var raw map[string]json.RawMessage
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read: %v", err)
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw["data"], &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if _, ok := data["last_sample"]; ok {
		t.Fatalf("idle snapshot must omit last_sample: %s", raw["data"])
	}
}
