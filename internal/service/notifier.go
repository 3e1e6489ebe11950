package service

import (
	"context"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/pkg/distributed"
)

type eventPublisher interface {
	Publish(ctx context.Context, event distributed.ChatEvent) error
}

// EventNotifier 대화 시작/종료를 이벤트 버스로 발행
type EventNotifier struct {
	bus eventPublisher
}

func NewEventNotifier(bus eventPublisher) *EventNotifier {
	return &EventNotifier{bus: bus}
}

func (n *EventNotifier) ConversationStarted(ctx context.Context, conv *models.Conversation) error {
	return n.bus.Publish(ctx, distributed.ChatEvent{
		Type:           distributed.EventConversationStarted,
		ConversationID: conv.ID,
		ParticipantIDs: conv.ParticipantIDs,
		SharedInterest: conv.SharedInterest,
		Timestamp:      conv.CreatedAt,
	})
}

func (n *EventNotifier) ConversationEnded(ctx context.Context, conv *models.Conversation, endedBy string) error {
	event := distributed.ChatEvent{
		Type:           distributed.EventConversationEnded,
		ConversationID: conv.ID,
		ParticipantIDs: conv.ParticipantIDs,
		EndedBy:        endedBy,
	}
	if conv.EndedAt != nil {
		event.Timestamp = *conv.EndedAt
	}
	return n.bus.Publish(ctx, event)
}

type nopNotifier struct{}

func (nopNotifier) ConversationStarted(context.Context, *models.Conversation) error { return nil }

func (nopNotifier) ConversationEnded(context.Context, *models.Conversation, string) error {
	return nil
}
