package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/worker/mailbox"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startStubStorage runs a minimal health-answering storage worker whose
// lifetime is controlled by the returned cancel func.
func startStubStorage() (*mailbox.Mailbox[storage.Request], context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	mb := mailbox.New[storage.Request](mailbox.DefaultCapacity)

	go func() {
		defer mb.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-mb.Chan():
				if r, ok := req.(storage.HealthRequest); ok {
					r.Reply <- storage.Response{Kind: storage.HealthOK}
				}
			}
		}
	}()

	return mb, cancel
}

func startTestSupervisor(t *testing.T) (*Supervisor, *mailbox.Mailbox[Request], *atomic.Int64) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	starts := &atomic.Int64{}
	s := newSupervisor(nil)
	s.probeTimeout = 100 * time.Millisecond
	s.startStorage = func(context.Context) *mailbox.Mailbox[storage.Request] {
		starts.Add(1)
		mb, stop := startStubStorage()
		t.Cleanup(stop)

		return mb
	}
	go s.run(ctx)

	return s, s.mb, starts
}

func TestHealth(t *testing.T) {
	_, sup, _ := startTestSupervisor(t)

	require.NoError(t, Health(context.Background(), sup))
}

func TestStorageSenderStartsWorkerLazily(t *testing.T) {
	_, sup, starts := startTestSupervisor(t)

	assert.Equal(t, int64(0), starts.Load())

	mb, err := StorageSender(context.Background(), sup)
	require.NoError(t, err)
	require.NotNil(t, mb)
	assert.Equal(t, int64(1), starts.Load())
}

func TestStorageSenderReusesHealthyWorker(t *testing.T) {
	_, sup, starts := startTestSupervisor(t)

	first, err := StorageSender(context.Background(), sup)
	require.NoError(t, err)

	second, err := StorageSender(context.Background(), sup)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), starts.Load())
}

func TestStorageSenderRestartsDeadWorker(t *testing.T) {
	s, sup, starts := startTestSupervisor(t)

	// Hand-start a worker we can kill from the outside.
	mb, stop := startStubStorage()
	s.storageMB = mb

	first, err := StorageSender(context.Background(), sup)
	require.NoError(t, err)
	assert.Same(t, mb, first)
	assert.Equal(t, int64(0), starts.Load())

	stop()
	select {
	case <-mb.Done():
	case <-time.After(time.Second):
		t.Fatal("stub worker never shut down")
	}

	second, err := StorageSender(context.Background(), sup)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(1), starts.Load())

	require.NoError(t, probe(context.Background(), second, newStorageHealth, time.Second))
}

func TestAppContext(t *testing.T) {
	_, sup, _ := startTestSupervisor(t)

	ac, err := AppContext(context.Background(), sup)
	require.NoError(t, err)
	assert.Nil(t, ac)
}

func TestProbeNilMailbox(t *testing.T) {
	err := probe(context.Background(), (*mailbox.Mailbox[storage.Request])(nil), newStorageHealth, time.Second)
	assert.ErrorIs(t, err, errNotStarted)
}

func TestRequestFailsAfterSupervisorStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSupervisor(nil)
	go s.run(ctx)

	require.NoError(t, Health(context.Background(), s.mb))

	cancel()
	select {
	case <-s.mb.Done():
	case <-time.After(time.Second):
		t.Fatal("supervisor never shut down")
	}

	assert.Error(t, Health(context.Background(), s.mb))
}
