package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/internal/repository"
)

// memoryState 대기 풀과 대화 저장소가 공유하는 인메모리 상태.
// 각 연산은 mutex 하나로 보호되어 Redis 스크립트처럼 원자적으로 동작한다.
type memoryState struct {
	mu            sync.Mutex
	entries       map[string]*models.WaitingEntry
	active        map[string]string
	conversations map[string]*models.Conversation

	// 테스트 주입
	failWith       error
	alwaysConflict bool
	claimCalls     int
}

func newMemoryState() *memoryState {
	return &memoryState{
		entries:       make(map[string]*models.WaitingEntry),
		active:        make(map[string]string),
		conversations: make(map[string]*models.Conversation),
	}
}

type memoryPool struct{ *memoryState }

type memoryConversations struct{ *memoryState }

func (m memoryPool) Enqueue(_ context.Context, entry *models.WaitingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if _, ok := m.active[entry.UserID]; ok {
		return repository.ErrActiveConversation
	}
	if _, ok := m.entries[entry.UserID]; ok {
		return repository.ErrEntryExists
	}
	copied := *entry
	copied.Interests = append([]string(nil), entry.Interests...)
	m.entries[entry.UserID] = &copied
	return nil
}

func (m memoryPool) FindCandidate(_ context.Context, interests []string, excludeUserID string, notBefore time.Time) (*models.WaitingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	for _, tag := range interests {
		var bucket []*models.WaitingEntry
		for _, entry := range m.entries {
			if entry.UserID == excludeUserID || entry.EnqueuedAt.Before(notBefore) {
				continue
			}
			for _, t := range entry.Interests {
				if t == tag {
					bucket = append(bucket, entry)
					break
				}
			}
		}
		if len(bucket) == 0 {
			continue
		}

		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].EnqueuedAt.Equal(bucket[j].EnqueuedAt) {
				return bucket[i].UserID < bucket[j].UserID
			}
			return bucket[i].EnqueuedAt.Before(bucket[j].EnqueuedAt)
		})
		found := *bucket[0]
		return &found, nil
	}
	return nil, nil
}

func (m memoryPool) Claim(_ context.Context, callerID string, candidate *models.WaitingEntry, conv *models.Conversation) error {
	candidateID := candidate.UserID
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	if m.failWith != nil {
		return m.failWith
	}

	if _, ok := m.active[callerID]; ok {
		return repository.ErrActiveConversation
	}
	if m.alwaysConflict {
		return repository.ErrClaimConflict
	}
	current, ok := m.entries[candidateID]
	if !ok || !sameEntry(current, candidate) {
		return repository.ErrClaimConflict
	}
	if _, ok := m.active[candidateID]; ok {
		return repository.ErrClaimConflict
	}

	delete(m.entries, candidateID)
	delete(m.entries, callerID)

	stored := *conv
	stored.ParticipantIDs = append([]string(nil), conv.ParticipantIDs...)
	m.conversations[conv.ID] = &stored
	m.active[callerID] = conv.ID
	m.active[candidateID] = conv.ID
	return nil
}

// sameEntry 후보가 조회 이후 다시 등록되지 않았는지 (등록 시각 ms + 관심사)
func sameEntry(a, b *models.WaitingEntry) bool {
	if a.EnqueuedAt.UnixMilli() != b.EnqueuedAt.UnixMilli() || len(a.Interests) != len(b.Interests) {
		return false
	}
	for i := range a.Interests {
		if a.Interests[i] != b.Interests[i] {
			return false
		}
	}
	return true
}

func (m memoryPool) Remove(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}

	_, ok := m.entries[userID]
	delete(m.entries, userID)
	return ok, nil
}

func (m memoryPool) PurgeExpired(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	n := 0
	for id, entry := range m.entries {
		if entry.EnqueuedAt.Before(cutoff) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m memoryPool) Get(_ context.Context, userID string) (*models.WaitingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	entry, ok := m.entries[userID]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (m memoryPool) Size(_ context.Context, tag string, notBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}

	var n int64
	for _, entry := range m.entries {
		if entry.EnqueuedAt.Before(notBefore) {
			continue
		}
		for _, t := range entry.Interests {
			if t == tag {
				n++
				break
			}
		}
	}
	return n, nil
}

func (m memoryConversations) Get(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	conv, ok := m.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (m memoryConversations) ActiveConversationID(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	return m.active[userID], nil
}

func (m memoryConversations) End(_ context.Context, id, endedBy string, endedAt time.Time) (*models.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, false, m.failWith
	}

	conv, ok := m.conversations[id]
	if !ok {
		return nil, false, repository.ErrConversationNotFound
	}
	if !conv.HasParticipant(endedBy) {
		return nil, false, repository.ErrNotParticipant
	}
	if !conv.IsActive() {
		copied := *conv
		return &copied, false, nil
	}

	endedAt = endedAt.Truncate(time.Millisecond)
	by := endedBy
	conv.Status = models.ConversationStatusEnded
	conv.EndedAt = &endedAt
	conv.EndedBy = &by
	for _, uid := range conv.ParticipantIDs {
		if m.active[uid] == id {
			delete(m.active, uid)
		}
	}

	copied := *conv
	return &copied, true, nil
}

// recordingNotifier 발행된 알림을 기록
type recordingNotifier struct {
	mu      sync.Mutex
	started []*models.Conversation
	ended   []string
}

func (n *recordingNotifier) ConversationStarted(_ context.Context, conv *models.Conversation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, conv)
	return nil
}

func (n *recordingNotifier) ConversationEnded(_ context.Context, conv *models.Conversation, endedBy string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, conv.ID+":"+endedBy)
	return nil
}

// steppingClock 호출할 때마다 1ms씩 증가하는 시계
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testHarness struct {
	state         *memoryState
	notifier      *recordingNotifier
	clock         *steppingClock
	conversations *ConversationService
	matchmaking   *MatchmakingService
}

func newTestHarness(config MatchmakingConfig) *testHarness {
	h := &testHarness{
		state:    newMemoryState(),
		notifier: &recordingNotifier{},
		clock:    newSteppingClock(),
	}

	h.conversations = NewConversationService(memoryConversations{h.state}, h.notifier, nil)
	h.conversations.now = h.clock.Now
	h.matchmaking = NewMatchmakingService(memoryPool{h.state}, h.conversations, config, nil)
	h.matchmaking.now = h.clock.Now
	return h
}
