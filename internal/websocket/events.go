package websocket

import (
	"github.com/anonchat/anonchat-backend/pkg/distributed"
)

// 클라이언트로 보내는 메시지 타입
const (
	MessageMatchFound  = "match_found"
	MessagePartnerLeft = "partner_left"
)

// MatchFoundMessage 대화가 열렸을 때 양쪽 참여자에게 전송
type MatchFoundMessage struct {
	ConversationID string `json:"conversationId"`
	PartnerID      string `json:"partnerId"`
	SharedInterest string `json:"sharedInterest"`
}

// PartnerLeftMessage 상대가 skip/leave 했거나 연결이 끊겼을 때 전송
type PartnerLeftMessage struct {
	ConversationID string `json:"conversationId"`
}

// HandleChatEvent 이벤트 버스로 받은 대화 이벤트를 이 인스턴스에 연결된 참여자에게 전달
func (h *Hub) HandleChatEvent(event distributed.ChatEvent) {
	if len(event.ParticipantIDs) != 2 {
		return
	}
	a, b := event.ParticipantIDs[0], event.ParticipantIDs[1]

	switch event.Type {
	case distributed.EventConversationStarted:
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			if !h.IsConnected(pair[0]) {
				continue
			}
			h.SendToPersona(pair[0], MessageMatchFound, MatchFoundMessage{
				ConversationID: event.ConversationID,
				PartnerID:      pair[1],
				SharedInterest: event.SharedInterest,
			})
		}

	case distributed.EventConversationEnded:
		for _, id := range event.ParticipantIDs {
			if id == event.EndedBy || !h.IsConnected(id) {
				continue
			}
			h.SendToPersona(id, MessagePartnerLeft, PartnerLeftMessage{
				ConversationID: event.ConversationID,
			})
		}
	}
}
