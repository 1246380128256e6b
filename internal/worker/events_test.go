package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/kafka"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	msgs     chan kafka.Message
	failures int

	mu        sync.Mutex
	committed []int64
}

func newFakeSource(values ...string) *fakeSource {
	s := &fakeSource{msgs: make(chan kafka.Message, len(values))}
	for i, v := range values {
		s.msgs <- kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	return s
}

func (s *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	s.mu.Unlock()
	select {
	case m := <-s.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *fakeSource) Commit(_ context.Context, m kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, m.Offset)
	return nil
}

func (s *fakeSource) commits() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type fakeHandler struct {
	mu     sync.Mutex
	seen   []model.Envelope
	fail   map[string]error
	panics map[string]bool
}

func (h *fakeHandler) Handle(_ context.Context, ev model.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev)
	if h.panics[ev.ID] {
		panic("nil map write")
	}
	return h.fail[ev.ID]
}

type faults struct {
	mu   sync.Mutex
	errs []error
}

func (f *faults) Fault(_ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *faults) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

func runUntil(t *testing.T, w *EventWorker, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEventWorker_HandlesAndCommitsInOrder(t *testing.T) {
	src := newFakeSource(
		`{"id":"a","type":"ready","channel_id":1}`,
		`{"id":"b","type":"inbound_message","channel_id":1,"address":"5511987654321","body":"hi"}`,
	)
	h := &fakeHandler{}
	w := NewEventWorker(src, h, nil, zap.NewNop())

	runUntil(t, w, func() bool { return len(src.commits()) == 2 })

	assert.Equal(t, []int64{0, 1}, src.commits())
	require.Len(t, h.seen, 2)
	assert.Equal(t, "a", h.seen[0].ID)
	assert.Equal(t, "hi", h.seen[1].Body)
}

func TestEventWorker_PoisonAndFailuresAreCommitted(t *testing.T) {
	src := newFakeSource(
		`not json`,
		`{"id":"x","type":"disconnected","channel_id":2}`,
		`{"id":"y","type":"ready","channel_id":2}`,
	)
	h := &fakeHandler{fail: map[string]error{"x": errors.New("db down")}}
	f := &faults{}
	w := NewEventWorker(src, h, f, zap.NewNop())

	runUntil(t, w, func() bool { return len(src.commits()) == 3 })

	assert.Len(t, h.seen, 2, "poison message never reaches the handler")
	assert.Equal(t, 1, f.count())
}

func TestEventWorker_HandlerPanicIsFaultAndCommitted(t *testing.T) {
	src := newFakeSource(
		`{"id":"p","type":"ready","channel_id":3}`,
		`{"id":"q","type":"ready","channel_id":3}`,
	)
	h := &fakeHandler{panics: map[string]bool{"p": true}}
	f := &faults{}
	w := NewEventWorker(src, h, f, zap.NewNop())

	runUntil(t, w, func() bool { return len(src.commits()) == 2 })

	assert.Equal(t, []int64{0, 1}, src.commits())
	require.Len(t, h.seen, 2)
	assert.Equal(t, "q", h.seen[1].ID)
	require.Equal(t, 1, f.count())
	f.mu.Lock()
	assert.ErrorContains(t, f.errs[0], "panic: nil map write")
	f.mu.Unlock()
}

func TestEventWorker_RetriesFetchErrors(t *testing.T) {
	src := newFakeSource(`{"id":"a","type":"ready","channel_id":1}`)
	src.failures = 2
	w := NewEventWorker(src, &fakeHandler{}, nil, zap.NewNop())
	w.FetchBackoff = time.Millisecond

	runUntil(t, w, func() bool { return len(src.commits()) == 1 })
}
