package repository

import (
	"context"
	"fmt"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/pkg/database"
	"github.com/lib/pq"
)

const conversationArchiveSchema = `
	CREATE TABLE IF NOT EXISTS anon_conversations (
		id              TEXT PRIMARY KEY,
		participant_ids TEXT[] NOT NULL,
		shared_interest TEXT NOT NULL,
		status          TEXT NOT NULL,
		ended_by        TEXT,
		created_at      TIMESTAMPTZ NOT NULL,
		ended_at        TIMESTAMPTZ
	)
`

// ConversationArchiveRepository 종료된 익명 대화 기록 (관심사 통계용)
type ConversationArchiveRepository struct {
	db *database.DB
}

func NewConversationArchiveRepository(db *database.DB) *ConversationArchiveRepository {
	return &ConversationArchiveRepository{db: db}
}

// EnsureSchema 테이블이 없으면 생성
func (r *ConversationArchiveRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, conversationArchiveSchema); err != nil {
		return fmt.Errorf("failed to create anon_conversations: %w", err)
	}
	return nil
}

// Save 대화 기록 저장. 같은 ID가 있으면 종료 정보만 갱신한다.
func (r *ConversationArchiveRepository) Save(ctx context.Context, conv *models.Conversation) error {
	query := `
		INSERT INTO anon_conversations (id, participant_ids, shared_interest, status, ended_by, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			status = EXCLUDED.status,
			ended_by = EXCLUDED.ended_by,
			ended_at = EXCLUDED.ended_at
	`
	_, err := r.db.ExecContext(ctx, query,
		conv.ID,
		pq.Array(conv.ParticipantIDs),
		conv.SharedInterest,
		string(conv.Status),
		conv.EndedBy,
		conv.CreatedAt,
		conv.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive conversation: %w", err)
	}
	return nil
}

// CountBySharedInterest 관심사별 누적 대화 수
func (r *ConversationArchiveRepository) CountBySharedInterest(ctx context.Context, limit int) (map[string]int64, error) {
	query := `
		SELECT shared_interest, COUNT(*)
		FROM anon_conversations
		GROUP BY shared_interest
		ORDER BY COUNT(*) DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var interest string
		var count int64
		if err := rows.Scan(&interest, &count); err != nil {
			return nil, fmt.Errorf("failed to scan conversation count: %w", err)
		}
		counts[interest] = count
	}
	return counts, rows.Err()
}
