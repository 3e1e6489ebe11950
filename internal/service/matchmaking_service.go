package service

import (
	"context"
	"errors"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MatchmakingConfig 매칭 정책 값
type MatchmakingConfig struct {
	// StaleAfter 이보다 오래 기다린 엔트리는 후보에서 제외되고 sweeper가 정리한다
	StaleAfter time.Duration
	// ClaimAttempts 후보 claim 충돌 시 재시도 상한 (첫 시도 포함)
	ClaimAttempts int
	Interests     InterestPolicy
}

func DefaultMatchmakingConfig() MatchmakingConfig {
	return MatchmakingConfig{
		StaleAfter:    2 * time.Minute,
		ClaimAttempts: 3,
		Interests:     DefaultInterestPolicy(),
	}
}

// MatchmakingService 관심사 기반 익명 매칭 (joinQueue / skip / leave)
type MatchmakingService struct {
	pool          WaitingPool
	conversations *ConversationService
	config        MatchmakingConfig
	logger        *zap.Logger
	metrics       *matchMetrics
	now           func() time.Time
}

func NewMatchmakingService(
	pool WaitingPool,
	conversations *ConversationService,
	config MatchmakingConfig,
	logger *zap.Logger,
) *MatchmakingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultMatchmakingConfig().StaleAfter
	}
	if config.ClaimAttempts <= 0 {
		config.ClaimAttempts = 1
	}
	if config.Interests.MaxTags <= 0 || config.Interests.MaxLength <= 0 {
		config.Interests = DefaultInterestPolicy()
	}

	return &MatchmakingService{
		pool:          pool,
		conversations: conversations,
		config:        config,
		logger:        logger,
		metrics:       newMatchMetrics(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// JoinQueue 대기 중인 상대를 찾아 매칭하거나, 없으면 대기열에 등록
func (s *MatchmakingService) JoinQueue(ctx context.Context, userID string, interests []string) (*models.MatchResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	tags, err := s.config.Interests.Normalize(interests)
	if err != nil {
		return nil, err
	}

	return s.join(ctx, userID, tags)
}

// Skip 현재 대화를 끝내고 바로 다시 매칭 시도.
// conversationID가 비어 있으면 사용자의 활성 대화를 종료한다.
func (s *MatchmakingService) Skip(ctx context.Context, userID string, interests []string, conversationID string) (*models.MatchResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	tags, err := s.config.Interests.Normalize(interests)
	if err != nil {
		return nil, err
	}

	if conversationID == "" {
		if conversationID, err = s.conversations.ActiveFor(ctx, userID); err != nil {
			return nil, err
		}
	}

	if conversationID != "" {
		_, err := s.conversations.End(ctx, conversationID, userID)
		// 보존 기간이 지나 사라진 대화는 이미 끝난 것으로 본다
		if err != nil && !errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}
	}

	s.metrics.add(ctx, s.metrics.skips, 1)
	s.logger.Info("User skipped conversation",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID))

	return s.join(ctx, userID, tags)
}

// Leave 대기 엔트리를 지우고 활성 대화를 종료. 둘 다 없으면 아무것도 하지 않는다.
func (s *MatchmakingService) Leave(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}

	removed, err := s.pool.Remove(ctx, userID)
	if err != nil {
		return translateStoreErr("remove waiting entry", err)
	}

	conversationID, err := s.conversations.ActiveFor(ctx, userID)
	if err != nil {
		return err
	}
	if conversationID != "" {
		if _, err := s.conversations.End(ctx, conversationID, userID); err != nil && !errors.Is(err, ErrConversationNotFound) {
			return err
		}
	}

	if removed || conversationID != "" {
		s.logger.Info("User left",
			zap.String("user_id", userID),
			zap.Bool("was_queued", removed),
			zap.String("conversation_id", conversationID))
	}
	return nil
}

// Status 사용자의 현재 상태 (idle / queued / matched)
func (s *MatchmakingService) Status(ctx context.Context, userID string) (*models.UserStatus, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	status := &models.UserStatus{UserID: userID, State: models.UserStateIdle}

	conversationID, err := s.conversations.ActiveFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conversationID != "" {
		status.State = models.UserStateMatched
		status.ConversationID = conversationID
		return status, nil
	}

	entry, err := s.pool.Get(ctx, userID)
	if err != nil {
		return nil, translateStoreErr("get waiting entry", err)
	}
	if entry != nil && !s.isStale(entry) {
		enqueuedAt := entry.EnqueuedAt
		status.State = models.UserStateQueued
		status.Interests = entry.Interests
		status.EnqueuedAt = &enqueuedAt
	}
	return status, nil
}

// QueueSize 관심사 버킷에서 기다리는 인원. 만료된 엔트리는 세지 않는다.
func (s *MatchmakingService) QueueSize(ctx context.Context, interest string) (int64, error) {
	tags, err := s.config.Interests.Normalize([]string{interest})
	if err != nil {
		return 0, err
	}

	n, err := s.pool.Size(ctx, tags[0], s.staleCutoff())
	if err != nil {
		return 0, translateStoreErr("count waiting entries", err)
	}
	return n, nil
}

// PurgeExpired StaleAfter보다 오래된 대기 엔트리 제거
func (s *MatchmakingService) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.pool.PurgeExpired(ctx, s.staleCutoff())
	if err != nil {
		return n, translateStoreErr("purge expired entries", err)
	}
	if n > 0 {
		s.metrics.add(ctx, s.metrics.purged, int64(n))
	}
	return n, nil
}

func (s *MatchmakingService) join(ctx context.Context, userID string, tags []string) (*models.MatchResult, error) {
	conversationID, err := s.conversations.ActiveFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conversationID != "" {
		return nil, ErrAlreadyInConversation
	}

	entry, err := s.pool.Get(ctx, userID)
	if err != nil {
		return nil, translateStoreErr("get waiting entry", err)
	}
	if entry != nil {
		if !s.isStale(entry) {
			return nil, ErrAlreadyQueued
		}
		// sweep 전까지 남은 만료 엔트리는 새 요청으로 대체
		if _, err := s.pool.Remove(ctx, userID); err != nil {
			return nil, translateStoreErr("remove stale entry", err)
		}
	}

	return s.match(ctx, userID, tags)
}

// match 후보를 찾아 claim하고, claim 충돌 시 ClaimAttempts까지만 다시 찾는다.
// 후보가 없거나 재시도를 모두 소진하면 대기열에 등록한다.
func (s *MatchmakingService) match(ctx context.Context, userID string, tags []string) (*models.MatchResult, error) {
	for attempt := 1; attempt <= s.config.ClaimAttempts; attempt++ {
		candidate, err := s.pool.FindCandidate(ctx, tags, userID, s.staleCutoff())
		if err != nil {
			return nil, translateStoreErr("find candidate", err)
		}
		if candidate == nil {
			break
		}

		conv, err := s.conversations.Create(
			[]string{userID, candidate.UserID},
			firstSharedInterest(tags, candidate.Interests),
		)
		if err != nil {
			return nil, err
		}

		err = s.pool.Claim(ctx, userID, candidate, conv)
		if errors.Is(err, repository.ErrClaimConflict) {
			s.metrics.add(ctx, s.metrics.claimConflicts, 1)
			s.logger.Debug("Candidate claimed by another matcher",
				zap.String("user_id", userID),
				zap.String("candidate_id", candidate.UserID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, translateStoreErr("claim candidate", err)
		}

		s.metrics.add(ctx, s.metrics.matches, 1, attribute.String("interest", conv.SharedInterest))
		s.logger.Info("Match created",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", userID),
			zap.String("partner_id", candidate.UserID),
			zap.String("interest", conv.SharedInterest),
			zap.Duration("partner_waited", conv.CreatedAt.Sub(candidate.EnqueuedAt)))

		s.conversations.Opened(ctx, conv)
		return models.Matched(conv), nil
	}

	entry := &models.WaitingEntry{
		UserID:     userID,
		Interests:  tags,
		EnqueuedAt: s.now().Truncate(time.Millisecond),
	}
	if err := s.pool.Enqueue(ctx, entry); err != nil {
		return nil, translateStoreErr("enqueue", err)
	}

	s.metrics.add(ctx, s.metrics.queued, 1)
	s.logger.Info("User queued",
		zap.String("user_id", userID),
		zap.Strings("interests", tags))

	return models.Queued(entry), nil
}

func (s *MatchmakingService) staleCutoff() time.Time {
	return s.now().Add(-s.config.StaleAfter)
}

func (s *MatchmakingService) isStale(entry *models.WaitingEntry) bool {
	return entry.EnqueuedAt.Before(s.staleCutoff())
}
