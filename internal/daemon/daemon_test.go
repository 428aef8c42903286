package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DarkarBlays/inventario/internal/client"
	"github.com/DarkarBlays/inventario/internal/config"
	"github.com/DarkarBlays/inventario/internal/instance"
	"github.com/DarkarBlays/inventario/internal/lock"
	"github.com/DarkarBlays/inventario/internal/relay"
	"github.com/DarkarBlays/inventario/internal/status"
	"github.com/DarkarBlays/inventario/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// testHome points INVENTARIO_HOME at a short temp dir. Unix socket paths are
// limited to ~104 bytes on macOS, so t.TempDir() is too long.
func testHome(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "inv-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(instance.EnvHome, dir)
	for _, k := range []string{config.EnvHTTPAddr, config.EnvRemoteURL, config.EnvLogLevel, config.EnvInterval} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
	return dir
}

func startDaemon(t *testing.T, name string) *client.Client {
	t.Helper()
	app := fxtest.New(t, fx.NopLogger, Module(Params{Instance: name}))
	app.RequireStart()
	t.Cleanup(func() { app.RequireStop() })

	c, err := client.New(instance.SocketPath(name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDaemonLifecycle(t *testing.T) {
	testHome(t)
	c := startDaemon(t, "test")
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Instance)
	assert.Equal(t, string(status.Ready), st.State)
	assert.False(t, st.RelayEnabled)

	p, err := c.CreateProduct(ctx, store.ProductFields{Name: "Widget", Price: 2.5, Stock: 4})
	require.NoError(t, err)

	pending, err := c.DrainPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].RecordID)
	assert.Equal(t, p.ID, *pending[0].RecordID)

	require.NoError(t, c.Acknowledge(ctx, pending[0].ID))

	got, err := c.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SyncSynced, got.SyncState)

	info, err := os.Stat(instance.SocketPath("test"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSecondDaemonIsRejected(t *testing.T) {
	testHome(t)
	startDaemon(t, "solo")

	app := fx.New(fx.NopLogger, Module(Params{Instance: "solo"}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := app.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance locked by PID")
}

func TestGatewayBindFailureReleasesInstance(t *testing.T) {
	testHome(t)

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	cfg := config.Default()
	cfg.HTTP.Enabled = true
	cfg.HTTP.ListenAddr = busy.Addr().String()
	require.NoError(t, config.Save(instance.ConfigPath(), cfg))

	app := fx.New(fx.NopLogger, Module(Params{Instance: "bind"}))
	require.NoError(t, app.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = app.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start REST gateway")

	_, err = os.Stat(instance.SocketPath("bind"))
	assert.True(t, os.IsNotExist(err), "socket left behind: %v", err)

	lk, err := lock.Acquire(instance.Dir("bind"))
	require.NoError(t, err, "instance lock still held")
	require.NoError(t, lk.Release())
}

func TestDaemonRelaysToRemote(t *testing.T) {
	home := testHome(t)

	var (
		mu       sync.Mutex
		received []relay.Envelope
	)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env relay.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer remote.Close()

	cfg := config.Default()
	cfg.Relay.RemoteURL = remote.URL
	cfg.Relay.Interval = config.Duration{Duration: 50 * time.Millisecond}
	cfg.Relay.RatePerSec = 1000
	require.NoError(t, config.Save(instance.ConfigPath(), cfg))
	require.FileExists(t, home+"/config.toml")

	c := startDaemon(t, "relay")
	ctx := context.Background()

	p, err := c.CreateProduct(ctx, store.ProductFields{Name: "Widget"})
	require.NoError(t, err)
	_, err = c.UpdateProduct(ctx, p.ID, store.ProductPatch{Name: ptr("Gadget")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := c.Status(ctx)
		return err == nil && st.Pending == 0 && st.Synced == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, store.OpCreate, received[0].Operation)
	assert.Equal(t, store.OpUpdate, received[1].Operation)
	assert.Less(t, received[0].EntryID, received[1].EntryID)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.RelayEnabled)
	assert.Equal(t, received[1].EntryID, st.LastDeliveredID)
}

func ptr[T any](v T) *T { return &v }
