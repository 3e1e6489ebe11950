package service

import (
	"errors"
	"fmt"

	"github.com/anonchat/anonchat-backend/internal/repository"
)

// Validation errors
var (
	ErrInvalidInterests    = errors.New("at least one valid interest tag is required")
	ErrInvalidConversation = errors.New("conversation requires exactly two distinct participants")
)

// State machine errors (caller must reconcile and call the right operation)
var (
	ErrAlreadyQueued         = errors.New("user is already waiting for a match")
	ErrAlreadyInConversation = errors.New("user already has an active conversation")
)

// Conversation access errors
var (
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
	ErrConversationNotFound = errors.New("conversation not found")
)

// ErrStoreUnavailable 대기 풀/대화 저장소 호출 실패. 클라이언트에는 "다시 시도"로 표시된다.
var ErrStoreUnavailable = errors.New("matchmaking store unavailable")

// translateStoreErr 저장소 에러를 서비스 에러로 변환. 알 수 없는 에러는 ErrStoreUnavailable로 감싼다.
func translateStoreErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrEntryExists):
		return ErrAlreadyQueued
	case errors.Is(err, repository.ErrActiveConversation):
		return ErrAlreadyInConversation
	case errors.Is(err, repository.ErrConversationNotFound):
		return ErrConversationNotFound
	case errors.Is(err, repository.ErrNotParticipant):
		return ErrNotParticipant
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

var ErrMissingUser = errors.New("user id is required")
