package adminclient

import (
	"context"
	"errors"
	"net"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass-io/windlass/pkg/admin"
	"github.com/windlass-io/windlass/pkg/server"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

// startAdmin brings up a real admin server over a fresh engine; with start
// unset the engine stays in the initializing state.
func startAdmin(t *testing.T, start bool) (*Client, *server.Engine, string) {
	t.Helper()

	dataDir := t.TempDir()
	log, err := txnlog.Open(txnlog.Options{DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	engine := server.New(server.Options{Log: log, TickTime: time.Second})
	if start {
		require.NoError(t, engine.Start())
	}

	srv := admin.NewServer(admin.Options{Addr: "127.0.0.1:0"}, engine)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	return New(srv.Addr()), engine, dataDir
}

func TestHealth(t *testing.T) {
	client, _, _ := startAdmin(t, true)

	info, err := client.Health()
	require.NoError(t, err)
	assert.True(t, info.Healthy)
	assert.Equal(t, "running", info.State)
}

func TestHealthNotServing(t *testing.T) {
	client, _, _ := startAdmin(t, false)

	// 503 is an answer, not an error
	info, err := client.Health()
	require.NoError(t, err)
	assert.False(t, info.Healthy)
	assert.Equal(t, "initializing", info.State)
}

func TestStat(t *testing.T) {
	client, engine, _ := startAdmin(t, true)

	_, err := engine.Create("/stats", []byte("x"), false)
	require.NoError(t, err)

	info, err := client.Stat()
	require.NoError(t, err)
	assert.Equal(t, "running", info.State)
	assert.Equal(t, 2, info.NodeCount)
	assert.Equal(t, uint64(1), info.LastTxid)
	assert.Equal(t, int64(1000), info.TickTimeMs)
	assert.False(t, info.StartedAt.IsZero())
}

func TestConfAndDirs(t *testing.T) {
	client, _, dataDir := startAdmin(t, true)

	conf, err := client.Conf()
	require.NoError(t, err)
	assert.NotEmpty(t, conf.RunID)
	assert.Equal(t, int64(1000), conf.TickTimeMs)
	assert.Equal(t, dataDir, conf.DataDir)
	assert.Equal(t, dataDir, conf.LogDir)

	dirs, err := client.Dirs()
	require.NoError(t, err)
	assert.Equal(t, dataDir, dirs.DataDir)
	assert.Equal(t, dataDir, dirs.LogDir)
}

func TestMntr(t *testing.T) {
	client, engine, _ := startAdmin(t, true)

	_, err := engine.Create("/m", nil, false)
	require.NoError(t, err)

	info, err := client.Mntr()
	require.NoError(t, err)
	assert.Equal(t, "running", info.State)
	assert.Equal(t, 2, info.NodeCount)
	assert.Equal(t, uint64(1), info.LastTxid)
	assert.Equal(t, 1, info.AppendsSinceSnapshot)
}

func TestRuok(t *testing.T) {
	client, _, _ := startAdmin(t, true)
	assert.NoError(t, client.Ruok())
}

func TestRuokNotRunning(t *testing.T) {
	client, _, _ := startAdmin(t, false)

	err := client.Ruok()
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "not running")
}

func TestCommands(t *testing.T) {
	client, _, _ := startAdmin(t, true)

	commands, err := client.Commands()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ruok", "stat", "conf", "envi", "mntr", "dirs"}, commands)
}

func TestEnvi(t *testing.T) {
	client, _, _ := startAdmin(t, true)

	envi, err := client.Envi()
	require.NoError(t, err)
	assert.Equal(t, runtime.Version(), envi.GoVersion)
	assert.Equal(t, runtime.GOOS, envi.OS)
	assert.Equal(t, os.Getpid(), envi.PID)
	assert.NotEmpty(t, envi.ServerVersion)
}

func TestUnknownCommand(t *testing.T) {
	client, _, _ := startAdmin(t, true)

	err := client.getData("/commands/nope", &struct{}{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
}

func TestServerUnreachable(t *testing.T) {
	// Bind and immediately release a port so nothing is listening on it
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := New(addr).WithTimeout(500 * time.Millisecond)

	_, err = client.Health()
	assert.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "transport failures are not API errors")
}

func TestFullURLAccepted(t *testing.T) {
	client, _, _ := startAdmin(t, true)

	full := New("http://" + client.baseURL[len("http://"):])
	assert.NoError(t, full.Ruok())
}
