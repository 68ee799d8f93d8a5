package cli

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeServer struct {
	done     chan struct{}
	once     sync.Once
	serveErr error
	shutdown atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{done: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	if s.serveErr != nil {
		return s.serveErr
	}
	<-s.done
	return nil
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	s.once.Do(func() { close(s.done) })
	return nil
}

type fakePoller struct {
	started chan struct{}
	stops   atomic.Int32
}

func newFakePoller() *fakePoller {
	return &fakePoller{started: make(chan struct{}, 1)}
}

func (p *fakePoller) Start(ctx context.Context) error {
	p.started <- struct{}{}
	return nil
}

func (p *fakePoller) Stop() error {
	p.stops.Add(1)
	return nil
}

func TestRun_CancelShutsDown(t *testing.T) {
	srv, p := newFakeServer(), newFakePoller()
	cmd := &IngestCommand{Start: true}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- cmd.run(ctx, srv, p, zaptest.NewLogger(t)) }()

	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("poller was not started")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.True(t, srv.shutdown.Load())
	assert.Equal(t, int32(1), p.stops.Load())
}

func TestRun_WithoutStart(t *testing.T) {
	srv, p := newFakeServer(), newFakePoller()
	cmd := &IngestCommand{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, cmd.run(ctx, srv, p, zaptest.NewLogger(t)))
	assert.Empty(t, p.started)
	assert.Equal(t, int32(1), p.stops.Load())
}

func TestRun_ServerFailure(t *testing.T) {
	srv, p := newFakeServer(), newFakePoller()
	srv.serveErr = errors.New("address already in use")
	cmd := &IngestCommand{}

	err := cmd.run(context.Background(), srv, p, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, int32(1), p.stops.Load())
	assert.False(t, srv.shutdown.Load())
}

func TestRun_ServerClosedIsUnexpected(t *testing.T) {
	srv, p := newFakeServer(), newFakePoller()
	close(srv.done)
	cmd := &IngestCommand{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := cmd.run(ctx, srv, p, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpectedly")
}

func TestChatFactoryBuildsFreshClients(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	cfg, err := loadConfig(&GlobalFlags{Config: configPath})
	require.NoError(t, err)

	factory := chatFactory(cfg, t.TempDir(), zaptest.NewLogger(t))
	a := factory("https://web.whatsapp.com")
	b := factory("https://web.whatsapp.com")
	require.NotNil(t, a)
	assert.NotSame(t, a, b)
	assert.False(t, a.IsLive(context.Background()))
}
