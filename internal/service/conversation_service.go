package service

import (
	"context"
	"errors"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ConversationService 익명 대화 생명주기 관리
type ConversationService struct {
	store    ConversationStore
	notifier Notifier
	archive  ConversationArchive
	logger   *zap.Logger
	metrics  *matchMetrics
	now      func() time.Time
}

func NewConversationService(store ConversationStore, notifier Notifier, logger *zap.Logger) *ConversationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConversationService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		metrics:  newMatchMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AttachArchive 종료된 대화를 영구 저장소에 기록하도록 설정
func (s *ConversationService) AttachArchive(archive ConversationArchive) {
	s.archive = archive
}

// Create 매칭된 두 참여자의 대화 생성.
// 저장은 대기 엔트리 claim과 같은 원자적 단계에서 이루어진다.
func (s *ConversationService) Create(participantIDs []string, sharedInterest string) (*models.Conversation, error) {
	if len(participantIDs) != 2 ||
		participantIDs[0] == "" || participantIDs[1] == "" ||
		participantIDs[0] == participantIDs[1] {
		return nil, ErrInvalidConversation
	}

	return &models.Conversation{
		ID:             uuid.New().String(),
		ParticipantIDs: []string{participantIDs[0], participantIDs[1]},
		SharedInterest: sharedInterest,
		Status:         models.ConversationStatusActive,
		CreatedAt:      s.now().Truncate(time.Millisecond),
	}, nil
}

// Opened 생성된 대화를 메시징 서브시스템에 알림
func (s *ConversationService) Opened(ctx context.Context, conv *models.Conversation) {
	if err := s.notifier.ConversationStarted(ctx, conv); err != nil {
		s.logger.Error("Failed to notify conversation start",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}
}

// End 대화 종료. 이미 종료된 대화면 아무것도 하지 않고 현재 상태를 반환한다.
func (s *ConversationService) End(ctx context.Context, conversationID, endedBy string) (*models.Conversation, error) {
	if endedBy == "" {
		return nil, ErrMissingUser
	}

	conv, changed, err := s.store.End(ctx, conversationID, endedBy, s.now())
	if err != nil {
		return nil, translateStoreErr("end conversation", err)
	}
	if !changed {
		return conv, nil
	}

	s.metrics.add(ctx, s.metrics.ended, 1, attribute.String("interest", conv.SharedInterest))
	s.logger.Info("Conversation ended",
		zap.String("conversation_id", conv.ID),
		zap.String("ended_by", endedBy),
		zap.String("partner_id", conv.PartnerOf(endedBy)))

	if err := s.notifier.ConversationEnded(ctx, conv, endedBy); err != nil {
		s.logger.Error("Failed to notify conversation end",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, conv); err != nil {
			s.logger.Warn("Failed to archive conversation",
				zap.String("conversation_id", conv.ID),
				zap.Error(err))
		}
	}

	return conv, nil
}

// Get 대화 조회
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, translateStoreErr("get conversation", err)
	}
	return conv, nil
}

// GetForParticipant 참여자에게만 대화를 보여준다
func (s *ConversationService) GetForParticipant(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// ActiveFor userID의 활성 대화 ID. 없으면 빈 문자열.
func (s *ConversationService) ActiveFor(ctx context.Context, userID string) (string, error) {
	id, err := s.store.ActiveConversationID(ctx, userID)
	if err != nil {
		return "", translateStoreErr("get active conversation", err)
	}
	return id, nil
}

// PopularInterests 누적 대화 수 기준 상위 관심사. 기록 저장소가 없으면 빈 결과.
func (s *ConversationService) PopularInterests(ctx context.Context, limit int) (map[string]int64, error) {
	if s.archive == nil {
		return map[string]int64{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	counts, err := s.archive.CountBySharedInterest(ctx, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return counts, nil
}
