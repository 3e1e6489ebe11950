package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const purgeBatchSize = 500

// 대기열 등록: 활성 대화나 기존 엔트리가 있으면 거부하고, 엔트리 하나를 모든 관심사 버킷에서 참조한다
var enqueueScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[2]) == 1 then
		return -2
	end
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return -1
	end

	redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'interests', ARGV[3], 'enqueued_at', ARGV[2])
	redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
	for i = 4, #KEYS do
		redis.call('ZADD', KEYS[i], ARGV[2], ARGV[1])
	end
	return 1
`)

// 버킷을 주어진 순서대로 훑어 가장 오래된 후보 하나를 반환
var findCandidateScript = redis.NewScript(`
	for i = 1, #KEYS do
		local members = redis.call('ZRANGEBYSCORE', KEYS[i], ARGV[2], '+inf', 'WITHSCORES', 'LIMIT', 0, 2)
		for j = 1, #members, 2 do
			local uid = members[j]
			if uid ~= ARGV[1] then
				local interests = redis.call('HGET', ARGV[3] .. uid, 'interests')
				if interests then
					return {uid, interests, members[j + 1], i}
				end
			end
		end
	end
	return false
`)

// 후보가 FindCandidate가 본 엔트리 그대로 남아 있을 때만 양쪽 엔트리를 모든 버킷에서 제거하고 대화를 생성.
// 나갔다가 다시 들어온 후보는 관심사나 등록 시각이 달라지므로 충돌로 처리한다.
var claimScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[4]) == 1 then
		return -2
	end
	local seen = redis.call('HMGET', KEYS[1], 'interests', 'enqueued_at')
	local candidate = seen[1]
	if not candidate or redis.call('EXISTS', KEYS[5]) == 1 then
		return 0
	end
	if candidate ~= ARGV[8] or seen[2] ~= ARGV[7] then
		return 0
	end

	local function unlink(uid, interests)
		for tag in string.gmatch(interests, '[^,]+') do
			redis.call('ZREM', ARGV[6] .. tag, uid)
		end
		redis.call('ZREM', KEYS[3], uid)
	end

	unlink(ARGV[2], candidate)
	redis.call('DEL', KEYS[1])

	local own = redis.call('HGET', KEYS[2], 'interests')
	if own then
		unlink(ARGV[1], own)
		redis.call('DEL', KEYS[2])
	end

	redis.call('HSET', KEYS[6],
		'id', ARGV[3],
		'participant_a', ARGV[1],
		'participant_b', ARGV[2],
		'shared_interest', ARGV[4],
		'status', 'active',
		'created_at', ARGV[5])
	redis.call('SET', KEYS[4], ARGV[3])
	redis.call('SET', KEYS[5], ARGV[3])
	return 1
`)

var removeScript = redis.NewScript(`
	local interests = redis.call('HGET', KEYS[1], 'interests')
	if not interests then
		return 0
	end
	for tag in string.gmatch(interests, '[^,]+') do
		redis.call('ZREM', ARGV[2] .. tag, ARGV[1])
	end
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
`)

var purgeScript = redis.NewScript(`
	local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
	for _, uid in ipairs(stale) do
		local entryKey = ARGV[3] .. uid
		local interests = redis.call('HGET', entryKey, 'interests')
		if interests then
			for tag in string.gmatch(interests, '[^,]+') do
				redis.call('ZREM', ARGV[4] .. tag, uid)
			end
		end
		redis.call('DEL', entryKey)
		redis.call('ZREM', KEYS[1], uid)
	end
	return #stale
`)

// WaitingPoolRepository Redis 기반 관심사별 대기 풀.
// 버킷은 Sorted Set(score = 등록 시각 ms)이고, 엔트리 본문은 사용자별 Hash 하나에만 저장된다.
type WaitingPoolRepository struct {
	client *redis.Client
	keys   Keyspace
}

func NewWaitingPoolRepository(client *redis.Client, keys Keyspace) *WaitingPoolRepository {
	return &WaitingPoolRepository{client: client, keys: keys}
}

// Enqueue 엔트리를 관심사 버킷마다 등록
func (r *WaitingPoolRepository) Enqueue(ctx context.Context, entry *models.WaitingEntry) error {
	if len(entry.Interests) == 0 {
		return fmt.Errorf("waiting entry for %s has no interests", entry.UserID)
	}

	keys := make([]string, 0, 3+len(entry.Interests))
	keys = append(keys, r.keys.Entry(entry.UserID), r.keys.Active(entry.UserID), r.keys.Entries())
	for _, tag := range entry.Interests {
		keys = append(keys, r.keys.Bucket(tag))
	}

	result, err := enqueueScript.Run(ctx, r.client, keys,
		entry.UserID,
		toMillis(entry.EnqueuedAt),
		joinInterests(entry.Interests),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	switch result {
	case -2:
		return ErrActiveConversation
	case -1:
		return ErrEntryExists
	}
	return nil
}

// FindCandidate 관심사 순서대로 버킷을 확인해 excludeUserID가 아닌 가장 오래된 엔트리 반환.
// notBefore 이전에 등록된 엔트리는 만료된 것으로 보고 건너뛴다. 후보가 없으면 nil.
// 버킷 score는 ms 단위라서 같은 ms에 등록된 엔트리끼리는 userID 사전순으로 나온다.
func (r *WaitingPoolRepository) FindCandidate(ctx context.Context, interests []string, excludeUserID string, notBefore time.Time) (*models.WaitingEntry, error) {
	if len(interests) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(interests))
	for _, tag := range interests {
		keys = append(keys, r.keys.Bucket(tag))
	}

	result, err := findCandidateScript.Run(ctx, r.client, keys,
		excludeUserID,
		toMillis(notBefore),
		r.keys.EntryPrefix(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate: %w", err)
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("invalid candidate script result")
	}

	userID, _ := result[0].(string)
	rawInterests, _ := result[1].(string)
	rawScore, _ := result[2].(string)

	score, err := strconv.ParseFloat(rawScore, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid candidate score %q: %w", rawScore, err)
	}

	return &models.WaitingEntry{
		UserID:     userID,
		Interests:  splitInterests(rawInterests),
		EnqueuedAt: time.UnixMilli(int64(score)).UTC(),
	}, nil
}

// Claim FindCandidate가 반환한 후보와 요청자의 엔트리를 한 번에 제거하고 대화를 기록.
// 후보가 이미 다른 요청자에게 잡혔거나 다시 등록되어 엔트리가 바뀌었으면 ErrClaimConflict,
// 요청자가 이미 대화 중이면 ErrActiveConversation.
func (r *WaitingPoolRepository) Claim(ctx context.Context, callerID string, candidate *models.WaitingEntry, conv *models.Conversation) error {
	candidateID := candidate.UserID
	keys := []string{
		r.keys.Entry(candidateID),
		r.keys.Entry(callerID),
		r.keys.Entries(),
		r.keys.Active(callerID),
		r.keys.Active(candidateID),
		r.keys.Conversation(conv.ID),
	}

	result, err := claimScript.Run(ctx, r.client, keys,
		callerID,
		candidateID,
		conv.ID,
		conv.SharedInterest,
		toMillis(conv.CreatedAt),
		r.keys.BucketPrefix(),
		strconv.FormatInt(toMillis(candidate.EnqueuedAt), 10),
		joinInterests(candidate.Interests),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to claim candidate: %w", err)
	}

	switch result {
	case -2:
		return ErrActiveConversation
	case 0:
		return ErrClaimConflict
	}
	return nil
}

// Remove userID의 엔트리를 모든 버킷에서 제거. 없으면 아무것도 하지 않는다.
func (r *WaitingPoolRepository) Remove(ctx context.Context, userID string) (bool, error) {
	removed, err := removeScript.Run(ctx, r.client,
		[]string{r.keys.Entry(userID), r.keys.Entries()},
		userID,
		r.keys.BucketPrefix(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to remove waiting entry: %w", err)
	}
	return removed == 1, nil
}

// PurgeExpired cutoff 이전에 등록된 엔트리를 배치 단위로 제거
func (r *WaitingPoolRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		n, err := purgeScript.Run(ctx, r.client,
			[]string{r.keys.Entries()},
			toMillis(cutoff),
			purgeBatchSize,
			r.keys.EntryPrefix(),
			r.keys.BucketPrefix(),
		).Int()
		if err != nil {
			return total, fmt.Errorf("failed to purge expired entries: %w", err)
		}

		total += n
		if n < purgeBatchSize {
			return total, nil
		}
	}
}

// Get userID의 대기 엔트리 조회. 없으면 nil.
func (r *WaitingPoolRepository) Get(ctx context.Context, userID string) (*models.WaitingEntry, error) {
	values, err := r.client.HGetAll(ctx, r.keys.Entry(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting entry: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	enqueuedAt, err := parseMillis(values["enqueued_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid enqueued_at for %s: %w", userID, err)
	}

	return &models.WaitingEntry{
		UserID:     values["user_id"],
		Interests:  splitInterests(values["interests"]),
		EnqueuedAt: enqueuedAt,
	}, nil
}

// Size notBefore 이후 등록된 tag 버킷의 대기 인원
func (r *WaitingPoolRepository) Size(ctx context.Context, tag string, notBefore time.Time) (int64, error) {
	n, err := r.client.ZCount(ctx, r.keys.Bucket(tag), strconv.FormatInt(toMillis(notBefore), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count bucket: %w", err)
	}
	return n, nil
}
