package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// testServer wraps the status server behind an in-memory listener.
type testServer struct {
	server *Server
	lis    *bufconn.Listener
	conn   *grpc.ClientConn
}

func setupTestServer(t *testing.T, metrics http.Handler) *testServer {
	t.Helper()

	s, err := New(&Config{}, metrics)
	require.NoError(t, err)

	lis := bufconn.Listen(bufSize)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			t.Logf("server error: %v", err)
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	ts := &testServer{server: s, lis: lis, conn: conn}
	t.Cleanup(ts.close)
	return ts
}

func (ts *testServer) close() {
	ts.conn.Close()
	ts.server.Stop()
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestHealth_TracksMountState(t *testing.T) {
	ts := setupTestServer(t, nil)
	client := healthpb.NewHealthClient(ts.conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	ts.server.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	ts.server.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHandler_Healthz(t *testing.T) {
	s, err := New(&Config{}, nil)
	require.NoError(t, err)
	defer s.Stop()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetServing(true)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestHandler_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("mirrorfs_mounted 1\n"))
	})
	s, err := New(&Config{}, metrics)
	require.NoError(t, err)
	defer s.Stop()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mirrorfs_mounted 1")

	noMetrics, err := New(&Config{}, nil)
	require.NoError(t, err)
	defer noMetrics.Stop()
	rec = httptest.NewRecorder()
	noMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	s, err := New(&Config{GRPCAddr: "127.0.0.1:0", HTTPAddr: "127.0.0.1:0"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	s, err := New(&Config{HTTPAddr: "256.0.0.1:bogus"}, nil)
	require.NoError(t, err)

	err = s.Serve(context.Background())
	assert.Error(t, err)
}

func TestStop_ClosesOpenWatchStreams(t *testing.T) {
	ts := setupTestServer(t, nil)
	ts.server.config.StopTimeout = 100 * time.Millisecond
	ts.server.SetServing(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := healthpb.NewHealthClient(ts.conn).Watch(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	stopped := make(chan struct{})
	go func() {
		ts.server.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on an open Watch stream")
	}

	// The stream may still deliver the NOT_SERVING update before it ends.
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
}

func TestNew_DefaultStopTimeout(t *testing.T) {
	s, err := New(&Config{}, nil)
	require.NoError(t, err)
	defer s.Stop()
	assert.Equal(t, DefaultStopTimeout, s.config.StopTimeout)
}
