package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"bank-node/internal/adapter/storage/memory"
	"bank-node/internal/adapter/tcp/handler"
	"bank-node/internal/core/ports/mocks"
	"bank-node/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testBank = "10.1.2.3"

type testServer struct {
	srv    *Server
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func defaultTestConfig() Config {
	return Config{
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         time.Second,
		MaxConnections:       16,
		MaxLineBytes:         256,
		AllowShutdownCommand: true,
	}
}

func startServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	store := memory.NewStore()
	log := zerolog.New(io.Discard)
	ledger := service.NewLedgerService(store, store, testBank, time.Second, log)
	router := handler.NewRouter(handler.RouterDeps{Ledger: ledger, Logger: log})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		srv:    New(cfg, router, nil, log),
		addr:   ln.Addr().String(),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { ts.done <- ts.srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		ts.srv.Close()
		_ = ts.srv.Wait(context.Background())
	})
	return ts
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, raw string) {
	t.Helper()
	_, err := c.conn.Write([]byte(raw))
	require.NoError(t, err)
}

func (c *client) readLine(t *testing.T) string {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *client) call(t *testing.T, cmd string) string {
	t.Helper()
	c.send(t, cmd+"\n")
	return c.readLine(t)
}

func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestSession_BasicExchange(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	c := dial(t, ts.addr)

	assert.Equal(t, "BC "+testBank, c.call(t, "BC"))
	assert.Equal(t, "AC 10000/"+testBank, c.call(t, "AC"))
	assert.Equal(t, "AD", c.call(t, "AD 10000/"+testBank+" 100"))
	assert.Equal(t, "AW", c.call(t, "AW 10000/"+testBank+" 60"))
	assert.Equal(t, "AB 40", c.call(t, "AB 10000/"+testBank))
	assert.Equal(t, "Error: Unknown command. Type HELP for a list of commands.", c.call(t, "NOPE"))

	// A malformed command never ends the session.
	assert.Equal(t, "Error: Invalid account string format. Expected <number>/<bank_code>.", c.call(t, "AD 99999 abc"))
	assert.Equal(t, "BN 1", c.call(t, "BN"))
}

func TestSession_PipelinedLinesAnsweredInOrder(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	c := dial(t, ts.addr)

	c.send(t, "BC\r\n\n   \nAC\r\nBN\n")

	assert.Equal(t, "BC "+testBank, c.readLine(t))
	assert.Equal(t, "AC 10000/"+testBank, c.readLine(t))
	assert.Equal(t, "BN 1", c.readLine(t))
}

func TestSession_LineSplitAcrossWrites(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	c := dial(t, ts.addr)

	c.send(t, "B")
	time.Sleep(20 * time.Millisecond)
	c.send(t, "C")
	time.Sleep(20 * time.Millisecond)
	c.send(t, "\n")

	assert.Equal(t, "BC "+testBank, c.readLine(t))
}

func TestSession_LongLineClosesSession(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MaxLineBytes = 32
	ts := startServer(t, cfg)
	c := dial(t, ts.addr)

	c.send(t, strings.Repeat("A", 100))

	assert.Equal(t, "Error: Command too long.", c.readLine(t))
	c.expectClosed(t)
}

func TestSession_IdleTimeout(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	ts := startServer(t, cfg)
	c := dial(t, ts.addr)

	assert.Equal(t, "BC "+testBank, c.call(t, "BC"))
	c.expectClosed(t)
}

func TestSession_ShutdownDirective(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	other := dial(t, ts.addr)
	require.Equal(t, "BN 0", other.call(t, "BN"))

	c := dial(t, ts.addr)
	assert.Equal(t, ShutdownReply, c.call(t, "Shutdown-Server"))

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}
	assert.True(t, ts.srv.ShuttingDown())

	_, err := net.DialTimeout("tcp", ts.addr, 200*time.Millisecond)
	assert.Error(t, err)

	// Sessions already in progress keep being served, the requester included.
	assert.Equal(t, "BN 0", other.call(t, "BN"))
	assert.Equal(t, "BC "+testBank, other.call(t, "BC"))
	assert.Equal(t, "AC 10000/"+testBank, other.call(t, "AC"))
	assert.Equal(t, "BN 1", c.call(t, "BN"))
	assert.Equal(t, int64(2), ts.srv.ActiveSessions())

	// Sessions drain as their clients leave.
	require.NoError(t, other.conn.Close())
	require.NoError(t, c.conn.Close())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.srv.Wait(ctx))
}

func TestSession_ShutdownDirectiveDisabled(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.AllowShutdownCommand = false
	ts := startServer(t, cfg)
	c := dial(t, ts.addr)

	assert.Equal(t, "Error: Unknown command. Type HELP for a list of commands.", c.call(t, "shutdown-server"))
	assert.False(t, ts.srv.ShuttingDown())
	assert.Equal(t, "BC "+testBank, c.call(t, "BC"))
}

func TestServer_ContextCancelStopsAccepting(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	c := dial(t, ts.addr)
	require.Equal(t, "BC "+testBank, c.call(t, "BC"))

	ts.cancel()

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.True(t, ts.srv.ShuttingDown())

	// Cancellation is not propagated into the live session.
	assert.Equal(t, "BN 0", c.call(t, "BN"))
}

func TestServer_WaitHonorsDeadlineThenClose(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	c := dial(t, ts.addr)
	require.Equal(t, "BC "+testBank, c.call(t, "BC"))

	ts.srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ts.srv.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, int64(1), ts.srv.ActiveSessions())

	ts.srv.Close()
	require.NoError(t, ts.srv.Wait(context.Background()))
	assert.Equal(t, int64(0), ts.srv.ActiveSessions())
	c.expectClosed(t)
}

func TestServer_MaxConnections(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MaxConnections = 1
	ts := startServer(t, cfg)

	first := dial(t, ts.addr)
	require.Equal(t, "BC "+testBank, first.call(t, "BC"))

	second := dial(t, ts.addr)
	second.send(t, "BN\n")

	_ = second.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, err := second.r.ReadString('\n')
	require.Error(t, err, "second client must wait for a free slot")

	require.NoError(t, first.conn.Close())

	assert.Equal(t, "BN 0", second.readLine(t))
}

func TestServer_ConcurrentDepositsAcrossConnections(t *testing.T) {
	ts := startServer(t, defaultTestConfig())
	setup := dial(t, ts.addr)
	addr := strings.TrimPrefix(setup.call(t, "AC"), "AC ")

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		c := dial(t, ts.addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.conn.Write([]byte("AD " + addr + " 10\n"))
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			line, err := c.r.ReadString('\n')
			assert.NoError(t, err)
			assert.Equal(t, "AD\n", line)
		}()
	}
	wg.Wait()

	assert.Equal(t, fmt.Sprintf("AB %d", 10*n), setup.call(t, "AB "+addr))
	assert.Equal(t, fmt.Sprintf("BA %d", 10*n), setup.call(t, "BA"))
}

func TestServer_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.MaxConnections = 64
	ts := startServer(t, cfg)
	setup := dial(t, ts.addr)
	addr := strings.TrimPrefix(setup.call(t, "AC"), "AC ")
	require.Equal(t, "AD", setup.call(t, "AD "+addr+" 1000"))

	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		replies = map[string]int{}
	)
	for i := 0; i < n; i++ {
		c := dial(t, ts.addr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.conn.Write([]byte("AW " + addr + " 60\n"))
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			line, err := c.r.ReadString('\n')
			assert.NoError(t, err)
			mu.Lock()
			replies[strings.TrimSuffix(line, "\n")]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, replies["AW"])
	assert.Equal(t, 34, replies["Error: Amount exceeds current balance."])
	assert.Len(t, replies, 2)
	assert.Equal(t, "AB 40", setup.call(t, "AB "+addr))
}

func TestServer_ReportsSessionMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockMetrics(ctrl)

	closed := make(chan struct{})
	m.EXPECT().SessionOpened()
	m.EXPECT().SessionClosed().Do(func() { close(closed) })

	log := zerolog.Nop()
	store := memory.NewStore()
	ledger := service.NewLedgerService(store, store, testBank, 0, log)
	srv := New(defaultTestConfig(), handler.NewRouter(handler.RouterDeps{Ledger: ledger, Logger: log}), m, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	c := dial(t, ln.Addr().String())
	require.Equal(t, "BC "+testBank, c.call(t, "BC"))
	require.NoError(t, c.conn.Close())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session close not reported")
	}
}

func TestListenAndServe_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := New(defaultTestConfig(), nil, nil, zerolog.Nop())
	err = srv.ListenAndServe(context.Background(), ln.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "reading", StateReading.String())
	assert.Equal(t, "dispatching", StateDispatching.String())
	assert.Equal(t, "writing", StateWriting.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", SessionState(42).String())
}
