package websocket

import (
	"encoding/json"
	"fmt"
)

// Inbound event tags accepted on /ws.
const (
	EventJoin        = "join"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Outbound event tags written to clients.
const (
	EventReceiveMessage = "receive_message"
	EventError          = "error"
	EventJoined         = "joined"
)

// Inbound is a decoded client event. Which fields are set depends on Type:
// join carries UserID, typing carries SenderID and ReceiverID, send_message
// additionally carries Content.
type Inbound struct {
	Type       string
	UserID     int64
	SenderID   int64
	ReceiverID int64
	Content    string
}

type rawInbound struct {
	Type       string  `json:"type"`
	UserID     *int64  `json:"user_id"`
	SenderID   *int64  `json:"sender_id"`
	ReceiverID *int64  `json:"receiver_id"`
	Content    *string `json:"content"`
}

// DecodeInbound parses and shape-checks a client event. Field values beyond
// presence and sign are validated by the router.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("malformed event: %w", err)
	}

	switch raw.Type {
	case EventJoin, "join_room":
		if err := requireID("user_id", raw.UserID); err != nil {
			return Inbound{}, err
		}
		return Inbound{Type: EventJoin, UserID: *raw.UserID}, nil

	case EventTyping:
		if err := requireID("sender_id", raw.SenderID); err != nil {
			return Inbound{}, err
		}
		if err := requireID("receiver_id", raw.ReceiverID); err != nil {
			return Inbound{}, err
		}
		return Inbound{Type: EventTyping, SenderID: *raw.SenderID, ReceiverID: *raw.ReceiverID}, nil

	case EventSendMessage:
		if err := requireID("sender_id", raw.SenderID); err != nil {
			return Inbound{}, err
		}
		if err := requireID("receiver_id", raw.ReceiverID); err != nil {
			return Inbound{}, err
		}
		if raw.Content == nil {
			return Inbound{}, fmt.Errorf("send_message: content is required")
		}
		return Inbound{
			Type:       EventSendMessage,
			SenderID:   *raw.SenderID,
			ReceiverID: *raw.ReceiverID,
			Content:    *raw.Content,
		}, nil

	case "":
		return Inbound{}, fmt.Errorf("event type is required")
	default:
		return Inbound{}, fmt.Errorf("unknown event type %q", raw.Type)
	}
}

func requireID(field string, v *int64) error {
	if v == nil {
		return fmt.Errorf("%s is required", field)
	}
	if *v <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}

// Envelope is the wire shape of every outbound event.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Encode marshals an outbound event.
func Encode(eventType string, data interface{}) ([]byte, error) {
	b, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return b, nil
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}
