package repository

import (
	"context"
	"testing"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_Lifecycle(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	keys := NewKeyspace("test")
	pool := NewWaitingPoolRepository(client, keys)
	repo := NewConversationRepository(client, keys, time.Hour)
	ctx := context.Background()

	_, err := repo.Get(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	b := entryAt("b", 0, "music")
	require.NoError(t, pool.Enqueue(ctx, b))
	require.NoError(t, pool.Claim(ctx, "a", b, testConversation("conv-1", "a", "b")))

	conv, err := repo.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, []string{"a", "b"}, conv.ParticipantIDs)
	assert.Equal(t, "music", conv.SharedInterest)
	assert.Equal(t, models.ConversationStatusActive, conv.Status)
	assert.True(t, baseTime.Add(time.Minute).Equal(conv.CreatedAt))
	assert.Nil(t, conv.EndedAt)
	assert.Nil(t, conv.EndedBy)

	active, err := repo.ActiveConversationID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", active)

	none, err := repo.ActiveConversationID(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, none)

	endedAt := baseTime.Add(5 * time.Minute)
	ended, changed, err := repo.End(ctx, "conv-1", "b", endedAt)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.ConversationStatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.True(t, endedAt.Equal(*ended.EndedAt))
	require.NotNil(t, ended.EndedBy)
	assert.Equal(t, "b", *ended.EndedBy)

	assert.False(t, mr.Exists(keys.Active("a")))
	assert.False(t, mr.Exists(keys.Active("b")))
	assert.Equal(t, time.Hour, mr.TTL(keys.Conversation("conv-1")))

	// 두 번째 종료는 변경 없음
	again, changed, err := repo.End(ctx, "conv-1", "a", endedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "b", *again.EndedBy)
	assert.True(t, endedAt.Equal(*again.EndedAt))
}

func TestConversationRepository_EndErrors(t *testing.T) {
	_, client := newMiniRedisClient(t)
	keys := NewKeyspace("test")
	pool := NewWaitingPoolRepository(client, keys)
	repo := NewConversationRepository(client, keys, time.Hour)
	ctx := context.Background()

	_, _, err := repo.End(ctx, "missing", "a", baseTime)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	b := entryAt("b", 0, "music")
	require.NoError(t, pool.Enqueue(ctx, b))
	require.NoError(t, pool.Claim(ctx, "a", b, testConversation("conv-1", "a", "b")))

	_, _, err = repo.End(ctx, "conv-1", "intruder", baseTime)
	assert.ErrorIs(t, err, ErrNotParticipant)

	conv, err := repo.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, conv.IsActive())
}

func TestConversationRepository_EndKeepsNewerActivePointer(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	keys := NewKeyspace("test")
	repo := NewConversationRepository(client, keys, 0)
	ctx := context.Background()

	mr.HSet(keys.Conversation("old"),
		"id", "old",
		"participant_a", "a",
		"participant_b", "b",
		"shared_interest", "music",
		"status", "active",
		"created_at", "1709294400000")
	require.NoError(t, mr.Set(keys.Active("a"), "newer"))
	require.NoError(t, mr.Set(keys.Active("b"), "old"))

	_, changed, err := repo.End(ctx, "old", "b", baseTime)
	require.NoError(t, err)
	assert.True(t, changed)

	pointer, err := mr.Get(keys.Active("a"))
	require.NoError(t, err)
	assert.Equal(t, "newer", pointer)
	assert.False(t, mr.Exists(keys.Active("b")))

	// retention 0이면 만료 설정 없음
	assert.Zero(t, mr.TTL(keys.Conversation("old")))
}
