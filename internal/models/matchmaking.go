package models

import "time"

// WaitingEntry 매칭 대기 중인 익명 페르소나
type WaitingEntry struct {
	UserID     string    `json:"userId"`
	Interests  []string  `json:"interests"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// MatchStatus joinQueue/skip 결과 상태
type MatchStatus string

const (
	MatchStatusMatched MatchStatus = "matched"
	MatchStatusQueued  MatchStatus = "queued"
)

// MatchResult 매칭 시도 결과. Matched면 Conversation, Queued면 Entry가 채워진다.
type MatchResult struct {
	Status       MatchStatus   `json:"status"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Entry        *WaitingEntry `json:"entry,omitempty"`
}

// Matched 매칭된 결과 생성
func Matched(conv *Conversation) *MatchResult {
	return &MatchResult{Status: MatchStatusMatched, Conversation: conv}
}

// Queued 대기열 등록 결과 생성
func Queued(entry *WaitingEntry) *MatchResult {
	return &MatchResult{Status: MatchStatusQueued, Entry: entry}
}

type UserState string

const (
	UserStateIdle    UserState = "idle"
	UserStateQueued  UserState = "queued"
	UserStateMatched UserState = "matched"
)

// UserStatus 사용자의 현재 매칭 상태
type UserStatus struct {
	UserID         string     `json:"userId"`
	State          UserState  `json:"state"`
	ConversationID string     `json:"conversationId,omitempty"`
	Interests      []string   `json:"interests,omitempty"`
	EnqueuedAt     *time.Time `json:"enqueuedAt,omitempty"`
}

// JoinQueueRequest 대기열 참가 요청. interests 검증은 서비스의 정규화 단계에서 한다.
type JoinQueueRequest struct {
	Interests []string `json:"interests"`
}

// SkipRequest 현재 대화를 건너뛰고 다시 매칭
type SkipRequest struct {
	Interests      []string `json:"interests"`
	ConversationID string   `json:"conversationId"`
}
