package models

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Client -> server events
const (
	EventNewUserAdd       = "new-user-add"
	EventSendMessage      = "send-message"
	EventJoinGroup        = "join-group"
	EventSendGroupMessage = "send-group-message"
)

// Server -> client events
const (
	EventGetUsers            = "get-users"
	EventReceiveMessage      = "receive-message"
	EventGroupNotification   = "group-notification"
	EventReceiveGroupMessage = "receive-group-message"
	EventConnectError        = "connect_error"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Frame is the envelope for every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is one of *AddUser, *SendMessage, *JoinGroup or
// *SendGroupMessage.
type ClientEvent interface {
	EventName() string
}

// AddUser announces the connection's user to the presence registry.
type AddUser struct {
	UserID string `validate:"required"`
}

func (*AddUser) EventName() string { return EventNewUserAdd }

// SendMessage asks for a direct relay. Body is the message object exactly as
// the client sent it; it is forwarded untouched.
type SendMessage struct {
	ReceiverID string          `json:"receiverId" validate:"required"`
	Body       json.RawMessage `json:"-"`
}

func (*SendMessage) EventName() string { return EventSendMessage }

type ConnectError struct {
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeClientEvent parses a client frame into its typed variant and
// validates it. Errors wrap ErrUnknownEvent or ErrInvalidPayload.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return frame.Decode()
}

func (f Frame) Decode() (ClientEvent, error) {
	var ev ClientEvent

	switch f.Event {
	case EventNewUserAdd:
		e := &AddUser{}
		if err := unmarshalData(f.Data, &e.UserID); err != nil {
			return nil, err
		}
		ev = e

	case EventSendMessage:
		e := &SendMessage{}
		if err := unmarshalData(f.Data, e); err != nil {
			return nil, err
		}
		e.Body = append(json.RawMessage(nil), bytes.TrimSpace(f.Data)...)
		ev = e

	case EventJoinGroup:
		e := &JoinGroup{}
		if err := unmarshalData(f.Data, &e.GroupID); err != nil {
			return nil, err
		}
		ev = e

	case EventSendGroupMessage:
		e := &SendGroupMessage{}
		if err := unmarshalData(f.Data, e); err != nil {
			return nil, err
		}
		ev = e

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}

	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, f.Event, err)
	}
	return ev, nil
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// EncodeFrame marshals payload under event. A json.RawMessage payload is
// embedded verbatim.
func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		data = b
	}
	return json.Marshal(Frame{Event: event, Data: data})
}
