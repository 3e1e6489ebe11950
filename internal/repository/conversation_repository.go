package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// 대화 종료: 참여자만 가능, 이미 종료된 대화는 0 반환.
// active 포인터는 이 대화를 가리킬 때만 지운다 (lock release와 같은 compare-and-delete).
var endConversationScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	local a = redis.call('HGET', KEYS[1], 'participant_a')
	local b = redis.call('HGET', KEYS[1], 'participant_b')
	if ARGV[1] ~= a and ARGV[1] ~= b then
		return -2
	end
	if redis.call('HGET', KEYS[1], 'status') == 'ended' then
		return 0
	end

	redis.call('HSET', KEYS[1], 'status', 'ended', 'ended_at', ARGV[2], 'ended_by', ARGV[1])
	local id = redis.call('HGET', KEYS[1], 'id')
	for _, uid in ipairs({a, b}) do
		local activeKey = ARGV[3] .. uid
		if redis.call('GET', activeKey) == id then
			redis.call('DEL', activeKey)
		end
	end
	if tonumber(ARGV[4]) > 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[4])
	end
	return 1
`)

// ConversationRepository Redis에 저장된 활성/종료 대화.
// 대화 생성은 WaitingPoolRepository.Claim 안에서 대기 엔트리 제거와 함께 이루어진다.
type ConversationRepository struct {
	client    *redis.Client
	keys      Keyspace
	retention time.Duration
}

func NewConversationRepository(client *redis.Client, keys Keyspace, retention time.Duration) *ConversationRepository {
	return &ConversationRepository{
		client:    client,
		keys:      keys,
		retention: retention,
	}
}

// Get 대화 조회
func (r *ConversationRepository) Get(ctx context.Context, id string) (*models.Conversation, error) {
	values, err := r.client.HGetAll(ctx, r.keys.Conversation(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrConversationNotFound
	}
	return parseConversation(values)
}

// ActiveConversationID userID가 참여 중인 활성 대화 ID. 없으면 빈 문자열.
func (r *ConversationRepository) ActiveConversationID(ctx context.Context, userID string) (string, error) {
	id, err := r.client.Get(ctx, r.keys.Active(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active conversation: %w", err)
	}
	return id, nil
}

// End 대화 종료. 이번 호출로 상태가 바뀌었으면 changed=true.
func (r *ConversationRepository) End(ctx context.Context, id, endedBy string, endedAt time.Time) (*models.Conversation, bool, error) {
	result, err := endConversationScript.Run(ctx, r.client,
		[]string{r.keys.Conversation(id)},
		endedBy,
		toMillis(endedAt),
		r.keys.ActivePrefix(),
		r.retention.Milliseconds(),
	).Int()
	if err != nil {
		return nil, false, fmt.Errorf("failed to end conversation: %w", err)
	}

	switch result {
	case -1:
		return nil, false, ErrConversationNotFound
	case -2:
		return nil, false, ErrNotParticipant
	}

	conv, err := r.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, result == 1, nil
}

func parseConversation(values map[string]string) (*models.Conversation, error) {
	createdAt, err := parseMillis(values["created_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}

	conv := &models.Conversation{
		ID:             values["id"],
		ParticipantIDs: []string{values["participant_a"], values["participant_b"]},
		SharedInterest: values["shared_interest"],
		Status:         models.ConversationStatus(values["status"]),
		CreatedAt:      createdAt,
	}

	if raw := values["ended_at"]; raw != "" {
		endedAt, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ended_at: %w", err)
		}
		conv.EndedAt = &endedAt
	}
	if by := values["ended_by"]; by != "" {
		conv.EndedBy = &by
	}

	return conv, nil
}
