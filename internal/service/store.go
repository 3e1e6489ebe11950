package service

import (
	"context"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
)

// WaitingPool 공유 대기 풀에 대한 좁은 연산 집합. 모든 접근은 이 인터페이스를 거친다.
type WaitingPool interface {
	Enqueue(ctx context.Context, entry *models.WaitingEntry) error
	FindCandidate(ctx context.Context, interests []string, excludeUserID string, notBefore time.Time) (*models.WaitingEntry, error)
	Claim(ctx context.Context, callerID string, candidate *models.WaitingEntry, conv *models.Conversation) error
	Remove(ctx context.Context, userID string) (bool, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
	Get(ctx context.Context, userID string) (*models.WaitingEntry, error)
	Size(ctx context.Context, tag string, notBefore time.Time) (int64, error)
}

// ConversationStore 대화 기록 저장소
type ConversationStore interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	ActiveConversationID(ctx context.Context, userID string) (string, error)
	End(ctx context.Context, id, endedBy string, endedAt time.Time) (*models.Conversation, bool, error)
}

// ConversationArchive 종료된 대화의 영구 기록
type ConversationArchive interface {
	Save(ctx context.Context, conv *models.Conversation) error
	CountBySharedInterest(ctx context.Context, limit int) (map[string]int64, error)
}

// Notifier 메시징 서브시스템에 대화 시작/종료를 알린다
type Notifier interface {
	ConversationStarted(ctx context.Context, conv *models.Conversation) error
	ConversationEnded(ctx context.Context, conv *models.Conversation, endedBy string) error
}
