package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisHarness struct {
	mr            *miniredis.Miniredis
	pool          *repository.WaitingPoolRepository
	clock         *steppingClock
	conversations *ConversationService
	matchmaking   *MatchmakingService
}

func newRedisHarness(t *testing.T) *redisHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 32})
	t.Cleanup(func() { _ = client.Close() })

	keys := repository.NewKeyspace("test")
	pool := repository.NewWaitingPoolRepository(client, keys)
	store := repository.NewConversationRepository(client, keys, time.Hour)

	clock := newSteppingClock()
	conversations := NewConversationService(store, nil, nil)
	conversations.now = clock.Now
	matchmaking := NewMatchmakingService(pool, conversations, DefaultMatchmakingConfig(), nil)
	matchmaking.now = clock.Now

	return &redisHarness{
		mr:            mr,
		pool:          pool,
		clock:         clock,
		conversations: conversations,
		matchmaking:   matchmaking,
	}
}

func TestRedisMatchmaking_SharedInterestScenario(t *testing.T) {
	h := newRedisHarness(t)
	ctx := context.Background()

	first, err := h.matchmaking.JoinQueue(ctx, "u1", []string{"music", "coding"})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusQueued, first.Status)

	second, err := h.matchmaking.JoinQueue(ctx, "u2", []string{"coding", "art"})
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, second.Status)
	assert.Equal(t, "coding", second.Conversation.SharedInterest)

	u1, err := h.matchmaking.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserStateMatched, u1.State)
	assert.Equal(t, second.Conversation.ID, u1.ConversationID)

	// u1의 엔트리가 모든 버킷에서 함께 사라졌다
	for _, tag := range []string{"music", "coding"} {
		size, err := h.matchmaking.QueueSize(ctx, tag)
		require.NoError(t, err)
		assert.Zero(t, size, tag)
	}

	stored, err := h.conversations.GetForParticipant(ctx, second.Conversation.ID, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, stored.ParticipantIDs)
}

func TestRedisMatchmaking_FIFOAndSkip(t *testing.T) {
	h := newRedisHarness(t)
	ctx := context.Background()

	// a, b, c가 이 순서로 기다리는 상태. JoinQueue로 넣으면 서로 매칭되므로 풀에 직접 등록한다.
	base := h.clock.Now()
	for i, uid := range []string{"c", "b", "a"} {
		require.NoError(t, h.pool.Enqueue(ctx, &models.WaitingEntry{
			UserID:     uid,
			Interests:  []string{"chess"},
			EnqueuedAt: base.Add(time.Duration(2-i) * time.Second),
		}))
	}
	h.clock.Advance(5 * time.Second)

	result, err := h.matchmaking.JoinQueue(ctx, "d", []string{"chess"})
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, result.Status)
	assert.Equal(t, "a", result.Conversation.PartnerOf("d"))

	skipped, err := h.matchmaking.Skip(ctx, "d", []string{"chess"}, result.Conversation.ID)
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, skipped.Status)
	assert.Equal(t, "b", skipped.Conversation.PartnerOf("d"))

	old, err := h.conversations.Get(ctx, result.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusEnded, old.Status)

	a, err := h.matchmaking.Status(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.UserStateIdle, a.State)

	// 남은 대기자는 c뿐
	again, err := h.matchmaking.JoinQueue(ctx, "a", []string{"chess"})
	require.NoError(t, err)
	require.Equal(t, models.MatchStatusMatched, again.Status)
	assert.Equal(t, "c", again.Conversation.PartnerOf("a"))
}

func TestRedisMatchmaking_ConcurrentJoins(t *testing.T) {
	h := newRedisHarness(t)
	ctx := context.Background()

	const users = 40
	results := make([]*models.MatchResult, users)
	var wg sync.WaitGroup

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := h.matchmaking.JoinQueue(ctx, fmt.Sprintf("user-%02d", i), []string{"music", "art"})
			if assert.NoError(t, err) {
				results[i] = result
			}
		}(i)
	}
	wg.Wait()

	conversations := make(map[string][]string)
	for _, result := range results {
		if result != nil && result.Status == models.MatchStatusMatched {
			conversations[result.Conversation.ID] = result.Conversation.ParticipantIDs
		}
	}

	inConversation := make(map[string]string)
	for id, participants := range conversations {
		for _, uid := range participants {
			other, dup := inConversation[uid]
			require.False(t, dup, "user %s in conversations %s and %s", uid, other, id)
			inConversation[uid] = id
		}
	}

	for i := 0; i < users; i++ {
		uid := fmt.Sprintf("user-%02d", i)
		status, err := h.matchmaking.Status(ctx, uid)
		require.NoError(t, err)

		if convID, ok := inConversation[uid]; ok {
			assert.Equal(t, models.UserStateMatched, status.State, uid)
			assert.Equal(t, convID, status.ConversationID, uid)

			entry, err := h.pool.Get(ctx, uid)
			require.NoError(t, err)
			assert.Nil(t, entry, "matched user %s still waiting", uid)
		} else {
			assert.Equal(t, models.UserStateQueued, status.State, uid)
		}
	}
}

func TestRedisMatchmaking_LeaveClearsState(t *testing.T) {
	h := newRedisHarness(t)
	ctx := context.Background()

	_, err := h.matchmaking.JoinQueue(ctx, "u1", []string{"music", "art"})
	require.NoError(t, err)
	require.NoError(t, h.matchmaking.Leave(ctx, "u1"))

	for _, tag := range []string{"music", "art"} {
		size, err := h.matchmaking.QueueSize(ctx, tag)
		require.NoError(t, err)
		assert.Zero(t, size)
	}

	_, err = h.matchmaking.JoinQueue(ctx, "u1", []string{"music"})
	require.NoError(t, err)
	matched, err := h.matchmaking.JoinQueue(ctx, "u2", []string{"music"})
	require.NoError(t, err)

	require.NoError(t, h.matchmaking.Leave(ctx, "u2"))

	conv, err := h.conversations.Get(ctx, matched.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationStatusEnded, conv.Status)

	// 종료된 대화는 보존 기간 뒤 사라진다
	h.mr.FastForward(2 * time.Hour)
	_, err = h.conversations.Get(ctx, matched.Conversation.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
