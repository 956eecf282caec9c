package daemon

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/api"
	"github.com/matheus3301/frontdesk/internal/client"
	"github.com/matheus3301/frontdesk/internal/config"
	"github.com/matheus3301/frontdesk/internal/metrics"
	"github.com/matheus3301/frontdesk/internal/workspace"
)

// shortHome points FRONTDESK_HOME at a short /tmp path to stay under the
// Unix socket path limit.
func shortHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "fd-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv("FRONTDESK_HOME", dir)
	return dir
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	// Nothing listens here; the link keeps retrying in the background.
	cfg.Doctor.URL = "ws://127.0.0.1:1/ws"
	cfg.Doctor.ClientID = "desk-test"
	cfg.Metrics.Addr = ""
	return cfg
}

func TestFxModuleWiring(t *testing.T) {
	shortHome(t)
	err := fx.ValidateApp(Module(Params{Workspace: "clinic", Config: testConfig()}))
	require.NoError(t, err)
}

func TestNewServerHonoursSocketOverride(t *testing.T) {
	dir := shortHome(t)
	socketPath := filepath.Join(dir, "d.sock")

	srv, err := NewServer(
		Params{Workspace: "fxtest", SocketPath: socketPath},
		zap.NewNop(),
		api.NewLinkService("fxtest", nil, nil, nil, nil, nil, nil),
		api.NewPatientService(nil, nil),
		api.NewBackupService(nil),
	)
	require.NoError(t, err)

	st, err := os.Stat(socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())

	srv.Stop(context.Background())
	_, err = os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestDaemonLifecycle(t *testing.T) {
	shortHome(t)
	cfg := testConfig()
	cfg.Backup.Schedule = "@every 1h"

	app := fxtest.New(t, Module(Params{Workspace: "clinic", Config: cfg}))
	app.RequireStart()

	c, err := client.New(workspace.SocketPath("clinic"))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		ok, err := c.Healthy(ctx)
		return err == nil && ok
	}, 3*time.Second, 20*time.Millisecond)

	var st api.Status
	require.NoError(t, c.Call(ctx, api.LinkServiceName, "GetStatus", nil, &st))
	assert.Equal(t, "clinic", st.Workspace)
	assert.Equal(t, "DISCONNECTED", st.State)
	assert.False(t, st.IsConnected)

	var created map[string]any
	require.NoError(t, c.Call(ctx, api.PatientServiceName, "AddPatient", map[string]any{"name": "Ana"}, &created))
	assert.Equal(t, "Ana", created["name"])

	// A second daemon for the same workspace must fail on the lock.
	second := fx.New(Module(Params{Workspace: "clinic", Config: testConfig()}), fx.NopLogger)
	assert.Error(t, second.Err())

	app.RequireStop()

	_, err = os.Stat(workspace.SocketPath("clinic"))
	assert.True(t, os.IsNotExist(err))
}

func TestMetricsServer(t *testing.T) {
	m := metrics.New()
	m.BackupCreated()

	srv := newMetricsServer("127.0.0.1:0", m, zap.NewNop())
	require.NoError(t, srv.Start())
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "frontdesk_backups_created_total 1"))
}

func TestMetricsServerDisabled(t *testing.T) {
	srv := newMetricsServer("", metrics.New(), zap.NewNop())
	require.NoError(t, srv.Start())
	srv.Stop(context.Background())
	assert.Empty(t, srv.Addr())
}
