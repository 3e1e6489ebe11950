package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventConversationStarted = "conversation_started"
	EventConversationEnded   = "conversation_ended"
)

// ChatEvent 서버 인스턴스 간에 전달되는 대화 이벤트
type ChatEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	ParticipantIDs []string  `json:"participant_ids"`
	SharedInterest string    `json:"shared_interest,omitempty"`
	EndedBy        string    `json:"ended_by,omitempty"`
	InstanceID     string    `json:"instance_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventBus Redis Pub/Sub 기반 이벤트 버스.
// 모든 인스턴스가 같은 채널을 구독하고, 각자 로컬에 연결된 참여자에게만 전달한다.
type EventBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

// NewEventBus 이벤트 버스 생성
func NewEventBus(client *redis.Client, channel string, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		client:     client,
		channel:    channel,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

func (b *EventBus) InstanceID() string {
	return b.instanceID
}

// Publish 이벤트 발행
func (b *EventBus) Publish(ctx context.Context, event ChatEvent) error {
	event.InstanceID = b.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Published chat event",
		zap.String("type", event.Type),
		zap.String("conversation_id", event.ConversationID))

	return nil
}

// Start 구독 시작. ctx가 끝날 때까지 블록한다.
func (b *EventBus) Start(ctx context.Context, handler func(event ChatEvent)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.logger.Info("Chat event bus started",
		zap.String("instance_id", b.instanceID),
		zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event ChatEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("Failed to unmarshal event", zap.Error(err))
				continue
			}

			handler(event)

		case <-ctx.Done():
			b.logger.Info("Chat event bus stopped")
			return ctx.Err()
		}
	}
}
