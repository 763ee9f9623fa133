package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/config"
	"github.com/giantswarm/suidriver/internal/driver"
	"github.com/giantswarm/suidriver/internal/engine/enginetest"
	"github.com/giantswarm/suidriver/internal/storage"
)

const demoID = "3d7e9b1a-2c4f-4e6a-8b0d-1f2e3a4b5c6d"

const demoProject = `<con:soapui-project id="%s" name="Demo" xmlns:con="http://eviware.com/soapui/config">
  <con:testSuite name="TS1">
    <con:testCase name="TC1"><con:testStep name="s1"/><con:testStep name="s2"/></con:testCase>
  </con:testSuite>
</con:soapui-project>`

type testServer struct {
	srv *Server
	drv *driver.Driver
	eng *enginetest.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	projects := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(projects, "Demo"+config.DefaultProjectSuffix),
		[]byte(fmt.Sprintf(demoProject, demoID)), 0o644))

	cfg := config.GetDefaultConfig()
	cfg.ProjectsDir = projects
	cfg.WorkDir = t.TempDir()
	cfg.Watch.Enabled = false

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	eng := enginetest.New()
	drv, err := driver.New(driver.Options{Config: cfg, Engine: eng, Store: store})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, drv.Start(context.Background()))

	return &testServer{srv: New(drv), drv: drv, eng: eng}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec, rec.Body.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndInfo(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, body)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Descriptors)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[driver.Info](t, body)
	assert.Equal(t, driver.ComponentID, info.ID)

	rec, body = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), "suidriver_catalog_descriptors 1")
}

func TestDescriptors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantIDs    []string
	}{
		{name: "list", path: "/api/v1/descriptors", wantStatus: http.StatusOK, wantIDs: []string{demoID}},
		{name: "lookup", path: "/api/v1/descriptors?id=nope&id=" + demoID, wantStatus: http.StatusOK, wantIDs: []string{demoID}},
		{name: "lookup none", path: "/api/v1/descriptors?id=nope", wantStatus: http.StatusOK, wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := ts.do(t, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, rec.Code)
			descs := decode[[]api.ProjectDescriptor](t, body)
			ids := []string{}
			for _, d := range descs {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	rec, body := ts.do(t, http.MethodGet, "/api/v1/descriptors/"+demoID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Demo", decode[api.ProjectDescriptor](t, body).Label)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/descriptors/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/descriptors/rescan", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/v1/tasks", api.TaskConfig{TaskID: "t1", DescriptorID: demoID})
	require.Equal(t, http.StatusAccepted, rec.Code, string(body))
	assert.Equal(t, "/api/v1/tasks/t1", rec.Header().Get("Location"))

	require.NoError(t, ts.drv.Wait(context.Background(), "t1"))

	rec, body = ts.do(t, http.MethodGet, "/api/v1/tasks/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[api.TaskOutcome](t, body)
	assert.Equal(t, api.StateCompleted, out.State)
	assert.True(t, out.Passed)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/tasks/t1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prog := decode[progressResponse](t, body)
	assert.Equal(t, 2, prog.StepsCompleted)
	assert.Equal(t, 100.0, prog.Percent)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/tasks/t1/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[api.ResultNode](t, body)
	assert.Equal(t, api.StatusPassed, tree.Status)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.TaskOutcome](t, body), 1)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/tasks", api.TaskConfig{TaskID: "t1", DescriptorID: demoID})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStoredTaskIsServedAfterForget(t *testing.T) {
	ts := newTestServer(t)

	ctrl, err := ts.drv.Execute(context.Background(), api.TaskConfig{DescriptorID: demoID})
	require.NoError(t, err)
	require.NoError(t, ts.drv.Forget(ctrl.ID()))

	rec, body := ts.do(t, http.MethodGet, "/api/v1/tasks/"+ctrl.ID(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, api.StateCompleted, decode[api.TaskOutcome](t, body).State)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/tasks/"+ctrl.ID()+"/result", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/tasks/"+ctrl.ID()+"/progress", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTask(t *testing.T) {
	ts := newTestServer(t)
	release := make(chan struct{})
	ts.eng.BeforeStep = func(api.CaseRef, string) { <-release }

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/tasks", api.TaskConfig{TaskID: "t1", DescriptorID: demoID})
	require.Equal(t, http.StatusAccepted, rec.Code)
	ctrl, err := ts.drv.Task("t1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ctrl.State() == api.StateRunning
	}, 2*time.Second, 5*time.Millisecond)

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/tasks/t1", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	close(release)
	require.NoError(t, ts.drv.Wait(context.Background(), "t1"))
	assert.Equal(t, api.StateCancelled, ctrl.State())

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTaskErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "malformed json", body: "{", want: http.StatusBadRequest},
		{name: "unknown field", body: `{"descriptorId":"x","bogus":1}`, want: http.StatusBadRequest},
		{name: "missing descriptor id", body: api.TaskConfig{}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := ts.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, tt.want, rec.Code, string(body))
			assert.NotEmpty(t, decode[errorResponse](t, body).Error)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPut, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.srv.Start("127.0.0.1:0"))
	assert.Error(t, ts.srv.Start("127.0.0.1:0"))

	resp, err := http.Get("http://" + ts.srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.srv.Shutdown(ctx))

	_, open := <-ts.srv.Errors()
	assert.False(t, open)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{api.NewTaskNotFoundError("x"), http.StatusNotFound},
		{driver.ErrClosed, http.StatusServiceUnavailable},
		{api.NewTaskError(api.KindInvalidState, nil, "busy"), http.StatusConflict},
		{api.NewTaskError(api.KindConfigurationError, nil, "bad"), http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
