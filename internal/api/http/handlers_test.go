package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikan-dev/multibox/internal/domain/dispatch"
	"github.com/mikan-dev/multibox/internal/domain/guard"
	"github.com/mikan-dev/multibox/internal/domain/registry"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

type fakeLauncher struct {
	pid int32
}

func (f *fakeLauncher) Launch(ctx context.Context, profileID int) (*types.LaunchResult, error) {
	pid := f.pid
	return &types.LaunchResult{Success: true, ProcessID: &pid}, nil
}

func (f *fakeLauncher) Stop(ctx context.Context, profileID int, pid *int32) (*types.StopResult, error) {
	return &types.StopResult{Success: true}, nil
}

type fakeChecker struct {
	active bool
}

func (f *fakeChecker) IsActive(ctx context.Context) (bool, error) {
	return f.active, nil
}

type fakeDebugger struct {
	procs []types.ProcessInfo
	err   error
}

func (f *fakeDebugger) DebugProcesses(ctx context.Context) ([]types.ProcessInfo, error) {
	return f.procs, f.err
}

type fixture struct {
	router   *gin.Engine
	registry *registry.Manager
	checker  *fakeChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewNop()
	reg := registry.NewManager()
	checker := &fakeChecker{}
	disp := dispatch.New(reg, &fakeLauncher{pid: 100}, checker, logger)
	g := guard.New(checker, time.Minute, logger)
	h := NewHandlers(reg, disp, g, &fakeDebugger{}, logger)

	router := gin.New()
	router.POST("/profiles", h.CreateProfile)
	router.GET("/profiles", h.ListProfiles)
	router.DELETE("/profiles/:id", h.DeleteProfile)
	router.POST("/profiles/:id/open", h.OpenProfile)
	router.POST("/profiles/:id/close", h.CloseProfile)
	router.POST("/profiles/:id/toggle", h.ToggleProfile)
	router.GET("/guard", h.GuardStatus)
	router.GET("/health", h.Health)

	return &fixture{router: router, registry: reg, checker: checker}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateProfile(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/profiles", `{"name":"Alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var inst types.Instance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	assert.Equal(t, 1, inst.ProfileID)
	assert.Equal(t, "Alice", inst.DisplayName)
	assert.Equal(t, types.StatusStopped, inst.Status)
}

func TestCreateProfileBadBody(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/profiles", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProfiles(t *testing.T) {
	f := newFixture(t)
	f.registry.Add("a")
	f.registry.Add("b")

	w := f.do(http.MethodGet, "/profiles", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Profiles []types.Instance `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Profiles, 2)
	assert.Equal(t, 1, resp.Profiles[0].ProfileID)
	assert.Equal(t, 2, resp.Profiles[1].ProfileID)
}

func TestOpenProfile(t *testing.T) {
	f := newFixture(t)
	f.registry.Add("a")

	w := f.do(http.MethodPost, "/profiles/1/open", "")
	require.Equal(t, http.StatusOK, w.Code)

	inst, ok := f.registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, types.StatusRunning, inst.Status)
}

func TestOpenProfileNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/profiles/99/open", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenProfileInvalidID(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/profiles/zero/open", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/profiles/0/open", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpenProfileGuardConflict(t *testing.T) {
	f := newFixture(t)
	f.registry.Add("a")
	f.checker.active = true

	w := f.do(http.MethodPost, "/profiles/1/open", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	inst, _ := f.registry.Get(1)
	assert.Equal(t, types.StatusStopped, inst.Status)
}

func TestDeleteProfile(t *testing.T) {
	f := newFixture(t)
	f.registry.Add("a")

	w := f.do(http.MethodDelete, "/profiles/1", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, ok := f.registry.Get(1)
	assert.False(t, ok)
}

func TestDeleteRunningProfileRequiresForce(t *testing.T) {
	f := newFixture(t)
	f.registry.Add("a")
	_, ok := f.registry.SetRunning(1, 123)
	require.True(t, ok)

	w := f.do(http.MethodDelete, "/profiles/1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	_, ok = f.registry.Get(1)
	assert.True(t, ok)

	w = f.do(http.MethodDelete, "/profiles/1?force=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	_, ok = f.registry.Get(1)
	assert.False(t, ok)
}

func TestDeleteProfileNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodDelete, "/profiles/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleProfile(t *testing.T) {
	f := newFixture(t)
	f.registry.Add("a")

	w := f.do(http.MethodPost, "/profiles/1/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	inst, _ := f.registry.Get(1)
	assert.Equal(t, types.StatusRunning, inst.Status)

	w = f.do(http.MethodPost, "/profiles/1/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	inst, _ = f.registry.Get(1)
	assert.Equal(t, types.StatusStopped, inst.Status)
}

func TestGuardStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/guard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp["exclusive_tool_active"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
