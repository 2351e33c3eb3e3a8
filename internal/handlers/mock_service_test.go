package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"reflow_oven/internal/models"
	"reflow_oven/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockProfiles struct {
	list      []models.Profile
	profile   models.Profile
	err       error
	lastID    string
	lastName  string
	lastWPs   []models.Waypoint
	deleted   []string
	selectErr error
}

func (m *mockProfiles) List() []models.Profile { return m.list }
func (m *mockProfiles) Get(id string) (models.Profile, error) {
	m.lastID = id
	return m.profile, m.err
}
func (m *mockProfiles) Create(_ context.Context, name string, wps []models.Waypoint) (models.Profile, error) {
	m.lastName, m.lastWPs = name, wps
	return m.profile, m.err
}
func (m *mockProfiles) Update(_ context.Context, id, name string, wps []models.Waypoint) (models.Profile, error) {
	m.lastID, m.lastName, m.lastWPs = id, name, wps
	return m.profile, m.err
}
func (m *mockProfiles) Delete(_ context.Context, id string) error {
	m.lastID = id
	if m.err == nil {
		m.deleted = append(m.deleted, id)
	}
	return m.err
}
func (m *mockProfiles) Select(_ context.Context, id string) error {
	m.lastID = id
	return m.selectErr
}

type mockDevices struct {
	list      []models.Device
	selectErr error
	rescanErr error
	lastID    string
	rescans   int
}

func (m *mockDevices) List() []models.Device { return m.list }
func (m *mockDevices) Select(_ context.Context, id string) error {
	m.lastID = id
	return m.selectErr
}
func (m *mockDevices) Rescan(context.Context) error {
	m.rescans++
	return m.rescanErr
}

type mockRun struct {
	startErr    error
	stopErr     error
	resetErr    error
	startCalled int
	stopCalled  int
	resetCalled int
}

func (m *mockRun) Start(context.Context) error {
	m.startCalled++
	return m.startErr
}
func (m *mockRun) Stop(context.Context) error {
	m.stopCalled++
	return m.stopErr
}
func (m *mockRun) Reset(context.Context) error {
	m.resetCalled++
	return m.resetErr
}

type mockMonitoring struct {
	mu        sync.Mutex
	status    models.RunStatus
	targets   models.Targets
	samples   []models.Sample
	lastSince float64
}

func (m *mockMonitoring) Status() models.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
func (m *mockMonitoring) CurrentTargets() models.Targets {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets
}
func (m *mockMonitoring) LastSample() (models.Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return models.Sample{}, false
	}
	return m.samples[len(m.samples)-1], true
}
func (m *mockMonitoring) SamplesSince(t float64) []models.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSince = t
	var out []models.Sample
	for _, s := range m.samples {
		if s.TimeS > t {
			out = append(out, s)
		}
	}
	return out
}
func (m *mockMonitoring) Snapshot() models.RunSnapshot {
	snap := models.RunSnapshot{Status: m.Status(), Targets: m.CurrentTargets()}
	if s, ok := m.LastSample(); ok {
		snap.LastSample = &s
	}
	return snap
}

type mockEventLog struct {
	resp       []models.RunEvent
	err        error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.RunEvent, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// doRequest serves one request; body is sent as JSON when non-empty.
func doRequest(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
