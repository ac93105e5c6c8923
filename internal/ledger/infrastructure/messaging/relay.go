package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wyfcoding/walletledger/internal/ledger/infrastructure/persistence/mysql"
	"github.com/wyfcoding/walletledger/pkg/logger"
	"github.com/wyfcoding/walletledger/pkg/metrics"
	"github.com/wyfcoding/walletledger/pkg/mq"
)

// Sender 投递已编码的消息，*mq.KafkaProducer 实现该接口
type Sender interface {
	SendRaw(ctx context.Context, topic, key string, value []byte) error
}

// DeadLetter 接收超过重试上限的事件，*mq.DeadLetterQueue 实现该接口
type DeadLetter interface {
	Send(ctx context.Context, original *mq.Message, reason string, cause error) error
}

// RelayConfig 投递参数
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Relay 轮询 outbox_events，把 PENDING 事件投递到 Kafka。
// 投递至少一次，消费者按 movement_id 去重。
type Relay struct {
	store   *mysql.OutboxStore
	sender  Sender
	dlq     DeadLetter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	cfg     RelayConfig
}

// NewRelay 创建 relay，dlq 与 m 可以为 nil
func NewRelay(store *mysql.OutboxStore, sender Sender, dlq DeadLetter, m *metrics.Metrics, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-kafka",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Relay{
		store:   store,
		sender:  sender,
		dlq:     dlq,
		breaker: breaker,
		metrics: m,
		cfg:     cfg,
	}
}

// Run 按间隔投递，直到 ctx 取消
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	logger.Info(ctx, "outbox relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			logger.Info(context.WithoutCancel(ctx), "outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "outbox relay iteration failed", "error", err)
			}
		}
	}
}

// RunOnce 投递一批事件，返回成功投递的条数
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var published, failed, dead int
	for _, evt := range events {
		_, sendErr := r.breaker.Execute(func() (any, error) {
			return nil, r.sender.SendRaw(ctx, evt.Topic, evt.MsgKey, []byte(evt.Payload))
		})
		if sendErr == nil {
			if err := r.store.MarkSent(ctx, evt.ID); err != nil {
				return published, fmt.Errorf("mark outbox event %s sent: %w", evt.EventID, err)
			}
			published++
			continue
		}

		// 熔断打开时不计入重试次数，等待下一轮
		if errors.Is(sendErr, gobreaker.ErrOpenState) || errors.Is(sendErr, gobreaker.ErrTooManyRequests) {
			break
		}

		failed++
		exhausted := evt.Attempts+1 >= r.cfg.MaxAttempts
		if exhausted && r.dlq != nil {
			msg := &mq.Message{Topic: evt.Topic, Key: evt.MsgKey, Value: []byte(evt.Payload), Time: evt.CreatedAt}
			if err := r.dlq.Send(ctx, msg, "max delivery attempts exceeded", sendErr); err != nil {
				logger.Error(ctx, "failed to send outbox event to dead letter queue", "event_id", evt.EventID, "error", err)
				exhausted = false
			}
		}
		if exhausted {
			dead++
		}
		if err := r.store.MarkFailed(ctx, evt.ID, sendErr.Error(), exhausted); err != nil {
			return published, fmt.Errorf("mark outbox event %s failed: %w", evt.EventID, err)
		}
		logger.Warn(ctx, "outbox delivery failed",
			"event_id", evt.EventID,
			"attempts", evt.Attempts+1,
			"dead", exhausted,
			"error", sendErr,
		)
	}

	r.metrics.RecordOutbox(published, failed, dead)
	return published, nil
}
