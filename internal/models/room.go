package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// JoinGroup adds the connection to a broadcast room.
type JoinGroup struct {
	GroupID string `validate:"required"`
}

func (*JoinGroup) EventName() string { return EventJoinGroup }

// SendGroupMessage is relayed to every member of GroupID as a GroupMessage.
type SendGroupMessage struct {
	GroupID  string          `json:"groupId" validate:"required"`
	Message  json.RawMessage `json:"message"`
	SenderID string          `json:"senderId"`
}

func (*SendGroupMessage) EventName() string { return EventSendGroupMessage }

// GroupMessage is the receive-group-message payload.
type GroupMessage struct {
	GroupID  string          `json:"groupId"`
	Message  json.RawMessage `json:"message"`
	SenderID string          `json:"senderId"`
}

func (m *SendGroupMessage) Outbound() GroupMessage {
	msg := m.Message
	if len(msg) == 0 {
		msg = json.RawMessage("null")
	}
	return GroupMessage{GroupID: m.GroupID, Message: msg, SenderID: m.SenderID}
}

// JoinNotice is the group-notification text sent when someone joins.
func JoinNotice(groupID string) string {
	return fmt.Sprintf("A new user has joined the group %s", groupID)
}
