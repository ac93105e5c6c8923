// Package messaging 账本事件的 outbox 登记与 Kafka 投递
package messaging

import (
	"context"

	"github.com/wyfcoding/walletledger/internal/ledger/domain"
	"github.com/wyfcoding/walletledger/internal/ledger/infrastructure/persistence/mysql"
)

// OutboxPublisher 把事件写进与业务相同的事务，由 Relay 异步投递
type OutboxPublisher struct {
	store  *mysql.OutboxStore
	topics map[string]string
}

var _ domain.EventPublisher = (*OutboxPublisher)(nil)

func NewOutboxPublisher(store *mysql.OutboxStore) *OutboxPublisher {
	return &OutboxPublisher{store: store, topics: make(map[string]string)}
}

// WithTopic 把领域主题映射到部署使用的 Kafka 主题
func (p *OutboxPublisher) WithTopic(topic, kafkaTopic string) *OutboxPublisher {
	if kafkaTopic != "" && kafkaTopic != topic {
		p.topics[topic] = kafkaTopic
	}
	return p
}

// PublishInTx 登记事件，随当前事务提交或回滚
func (p *OutboxPublisher) PublishInTx(ctx context.Context, topic, key string, event any) error {
	if mapped, ok := p.topics[topic]; ok {
		topic = mapped
	}
	return p.store.Add(ctx, topic, key, event)
}
