package models

import "time"

type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusEnded  ConversationStatus = "ended"
)

type Conversation struct {
	ID             string             `json:"id" db:"id"`
	ParticipantIDs []string           `json:"participantIds" db:"participant_ids"`
	SharedInterest string             `json:"sharedInterest" db:"shared_interest"`
	Status         ConversationStatus `json:"status" db:"status"`
	EndedBy        *string            `json:"endedBy,omitempty" db:"ended_by"`
	CreatedAt      time.Time          `json:"createdAt" db:"created_at"`
	EndedAt        *time.Time         `json:"endedAt,omitempty" db:"ended_at"`
}

// HasParticipant userID가 대화 참여자인지 확인
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// PartnerOf userID의 상대방 ID. 참여자가 아니면 빈 문자열.
func (c *Conversation) PartnerOf(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

func (c *Conversation) IsActive() bool {
	return c.Status == ConversationStatusActive
}
