package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/walletledger/internal/ledger/infrastructure/persistence/mysql"
	"github.com/wyfcoding/walletledger/pkg/db"
	"github.com/wyfcoding/walletledger/pkg/metrics"
	"github.com/wyfcoding/walletledger/pkg/mq"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (s *fakeSender) SendRaw(_ context.Context, topic, key string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, topic+"/"+key)
	return nil
}

type fakeDLQ struct {
	keys []string
}

func (d *fakeDLQ) Send(_ context.Context, original *mq.Message, _ string, _ error) error {
	d.keys = append(d.keys, original.Key)
	return nil
}

func newOutbox(t *testing.T) *mysql.OutboxStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Init(db.Config{Driver: "sqlite", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(mysql.Models()...))
	t.Cleanup(func() { _ = d.Close() })
	return mysql.NewOutboxStore(d.DB)
}

func TestRelayPublishesPendingEvents(t *testing.T) {
	t.Parallel()
	store := newOutbox(t)
	ctx := context.Background()
	pub := NewOutboxPublisher(store)
	for i := 1; i <= 3; i++ {
		require.NoError(t, pub.PublishInTx(ctx, "ledger.movements", fmt.Sprintf("MOV-%d", i), map[string]int{"n": i}))
	}

	m := metrics.New("relay_test")
	require.NoError(t, m.Register(prometheus.NewRegistry()))
	sender := &fakeSender{}
	relay := NewRelay(store, sender, nil, m, RelayConfig{BatchSize: 10, MaxAttempts: 3})

	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"ledger.movements/MOV-1", "ledger.movements/MOV-2", "ledger.movements/MOV-3"}, sender.sent)
	assert.InDelta(t, 3, testutil.ToFloat64(m.OutboxPublished), 0)

	n, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sent events are not delivered again")
}

func TestRelayMovesExhaustedEventsToDeadLetter(t *testing.T) {
	t.Parallel()
	store := newOutbox(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "ledger.movements", "MOV-1", map[string]int{"n": 1}))

	sender := &fakeSender{err: errors.New("broker unavailable")}
	dlq := &fakeDLQ{}
	relay := NewRelay(store, sender, dlq, nil, RelayConfig{BatchSize: 10, MaxAttempts: 2})

	_, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	pending, err := store.CountByStatus(ctx, mysql.OutboxPending)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending, "first failure is retried")
	assert.Empty(t, dlq.keys)

	_, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	dead, err := store.CountByStatus(ctx, mysql.OutboxDead)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
	assert.Equal(t, []string{"MOV-1"}, dlq.keys)
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	store := newOutbox(t)
	relay := NewRelay(store, &fakeSender{}, nil, nil, RelayConfig{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.NoError(t, store.Add(context.Background(), "t", "k", struct{}{}))
	require.Eventually(t, func() bool {
		n, err := store.CountByStatus(context.Background(), mysql.OutboxSent)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestOutboxPublisherMapsTopic(t *testing.T) {
	t.Parallel()
	store := newOutbox(t)
	ctx := context.Background()
	pub := NewOutboxPublisher(store).WithTopic("ledger.movements", "prod.ledger.movements")
	require.NoError(t, pub.PublishInTx(ctx, "ledger.movements", "MOV-1", struct{}{}))
	require.NoError(t, pub.PublishInTx(ctx, "other", "K-1", struct{}{}))

	sender := &fakeSender{}
	_, err := NewRelay(store, sender, nil, nil, RelayConfig{BatchSize: 10}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod.ledger.movements/MOV-1", "other/K-1"}, sender.sent)
}
