package transport

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass-io/windlass/pkg/server"
	"github.com/windlass-io/windlass/pkg/txnlog"
)

func newTestEngine(t *testing.T) *server.Engine {
	t.Helper()

	l, err := txnlog.Open(txnlog.Options{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return server.New(server.Options{Log: l, TickTime: time.Second})
}

func startTestFactory(t *testing.T, maxPerIP int, tlsConf *tls.Config) *Factory {
	t.Helper()

	f := NewFactory("plain")
	if tlsConf != nil {
		f = NewFactory("secure")
	}
	require.NoError(t, f.Configure("127.0.0.1:0", maxPerIP, tlsConf))
	require.NoError(t, f.Startup(newTestEngine(t), true))
	t.Cleanup(func() {
		f.Shutdown()
		f.Join()
	})
	return f
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialFactory(t *testing.T, f *Factory) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", f.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) roundTrip(t *testing.T, line string) string {
	t.Helper()

	_, err := fmt.Fprintln(c.conn, line)
	require.NoError(t, err)
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return resp[:len(resp)-1]
}

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()

	f := startTestFactory(t, 0, nil)
	c := dialFactory(t, f)

	assert.Equal(t, "imok", c.roundTrip(t, "ruok"))
	assert.Equal(t, "created /app v=0", c.roundTrip(t, "create /app hello world"))
	assert.Equal(t, "data v=0 hello world", c.roundTrip(t, "get /app"))
	assert.Equal(t, "set /app v=1", c.roundTrip(t, "set /app updated"))
	assert.Equal(t, "data v=1 updated", c.roundTrip(t, "get /app"))
	assert.Equal(t, "children app", c.roundTrip(t, "ls /"))
	assert.Equal(t, "v=1 cv=0 children=0 bytes=7 container=false", c.roundTrip(t, "stat /app"))
	assert.Equal(t, "ok", c.roundTrip(t, "del /app"))
	assert.Equal(t, "err no node", c.roundTrip(t, "get /app"))
}

func TestMkdirCreatesContainer(t *testing.T) {
	t.Parallel()

	f := startTestFactory(t, 0, nil)
	c := dialFactory(t, f)

	assert.Equal(t, "created /box v=0", c.roundTrip(t, "mkdir /box"))
	assert.Equal(t, "v=0 cv=0 children=0 bytes=0 container=true", c.roundTrip(t, "stat /box"))
}

func TestProtocolErrors(t *testing.T) {
	t.Parallel()

	f := startTestFactory(t, 0, nil)
	c := dialFactory(t, f)

	assert.Equal(t, "err unknown command", c.roundTrip(t, "frobnicate"))
	assert.Equal(t, "err missing path", c.roundTrip(t, "get"))
	assert.Equal(t, "err bad path", c.roundTrip(t, "create relative"))
	assert.Equal(t, "err no node", c.roundTrip(t, "create /no/parent"))

	require.Equal(t, "created /a v=0", c.roundTrip(t, "create /a"))
	assert.Equal(t, "err node exists", c.roundTrip(t, "create /a"))

	require.Equal(t, "created /a/b v=0", c.roundTrip(t, "create /a/b"))
	assert.Equal(t, "err not empty", c.roundTrip(t, "del /a"))
}

func TestServerSummary(t *testing.T) {
	t.Parallel()

	f := startTestFactory(t, 0, nil)
	c := dialFactory(t, f)

	require.Equal(t, "created /x v=0", c.roundTrip(t, "create /x"))
	assert.Equal(t, "state=running txid=1 nodes=2", c.roundTrip(t, "srvr"))
}

func TestStartupWithoutActivation(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	f := NewFactory("plain")
	require.NoError(t, f.Configure("127.0.0.1:0", 0, nil))
	require.NoError(t, f.Startup(eng, false))
	t.Cleanup(func() {
		f.Shutdown()
		f.Join()
	})

	// The engine is attached but not activated
	assert.Equal(t, server.StateInitializing, eng.State())
	assert.Same(t, eng, f.Server())

	c := dialFactory(t, f)
	assert.Equal(t, "err not running", c.roundTrip(t, "ruok"))
}

func TestStartupActivatesEngine(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	f := NewFactory("plain")
	require.NoError(t, f.Configure("127.0.0.1:0", 0, nil))
	require.NoError(t, f.Startup(eng, true))
	t.Cleanup(func() {
		f.Shutdown()
		f.Join()
	})

	assert.Equal(t, server.StateRunning, eng.State())

	err := f.Startup(eng, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestStartupRequiresConfigure(t *testing.T) {
	t.Parallel()

	f := NewFactory("plain")
	err := f.Startup(newTestEngine(t), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestServerNilBeforeStartup(t *testing.T) {
	t.Parallel()

	f := NewFactory("plain")
	assert.Nil(t, f.Server())
}

func TestConfigureBindFailure(t *testing.T) {
	t.Parallel()

	f1 := NewFactory("plain")
	require.NoError(t, f1.Configure("127.0.0.1:0", 0, nil))
	t.Cleanup(func() {
		f1.Shutdown()
		f1.Join()
	})

	f2 := NewFactory("plain")
	err := f2.Configure(f1.Addr(), 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}

func TestPerIPConnectionLimit(t *testing.T) {
	t.Parallel()

	f := startTestFactory(t, 2, nil)

	c1 := dialFactory(t, f)
	require.Equal(t, "imok", c1.roundTrip(t, "ruok"))
	c2 := dialFactory(t, f)
	require.Equal(t, "imok", c2.roundTrip(t, "ruok"))

	// The third connection from the same address is dropped after accept
	c3, err := net.Dial("tcp", f.Addr())
	require.NoError(t, err)
	defer c3.Close()

	_, _ = fmt.Fprintln(c3, "ruok")
	require.NoError(t, c3.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = bufio.NewReader(c3).ReadString('\n')
	assert.Error(t, err)

	// Closing one tracked connection frees a slot
	_ = c1.conn.Close()
	assert.Eventually(t, func() bool {
		return f.ActiveConns() < 2
	}, 5*time.Second, 10*time.Millisecond)

	c4 := dialFactory(t, f)
	assert.Equal(t, "imok", c4.roundTrip(t, "ruok"))
}

func TestShutdownDrains(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t)
	f := NewFactory("plain")
	require.NoError(t, f.Configure("127.0.0.1:0", 0, nil))
	require.NoError(t, f.Startup(eng, true))

	c := dialFactory(t, f)
	require.Equal(t, "imok", c.roundTrip(t, "ruok"))

	f.Shutdown()
	f.Shutdown() // idempotent
	f.Join()

	assert.Equal(t, 0, f.ActiveConns())

	// The listener no longer accepts
	_, err := net.Dial("tcp", f.Addr())
	assert.Error(t, err)
}

func TestJoinBeforeStartupReturns(t *testing.T) {
	t.Parallel()

	f := NewFactory("plain")
	done := make(chan struct{})
	go func() {
		f.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Join blocked without a started factory")
	}
}

func selfSignedTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
	}
}

func TestSecureListenerRoundTrip(t *testing.T) {
	t.Parallel()

	f := startTestFactory(t, 0, selfSignedTLSConfig(t))

	conn, err := tls.Dial("tcp", f.Addr(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	defer conn.Close()

	c := &testClient{conn: conn, r: bufio.NewReader(conn)}
	assert.Equal(t, "imok", c.roundTrip(t, "ruok"))
	assert.Equal(t, "created /tls v=0", c.roundTrip(t, "create /tls secret"))
	assert.Equal(t, "data v=0 secret", c.roundTrip(t, "get /tls"))
}
