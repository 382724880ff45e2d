package websocket

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Inbound
		wantErr string
	}{
		{"join", `{"type":"join","user_id":7}`, Inbound{Type: EventJoin, UserID: 7}, ""},
		{"join_room alias", `{"type":"join_room","user_id":7}`, Inbound{Type: EventJoin, UserID: 7}, ""},
		{"send", `{"type":"send_message","sender_id":7,"receiver_id":9,"content":"hi"}`,
			Inbound{Type: EventSendMessage, SenderID: 7, ReceiverID: 9, Content: "hi"}, ""},
		{"send empty content passes shape check", `{"type":"send_message","sender_id":7,"receiver_id":9,"content":""}`,
			Inbound{Type: EventSendMessage, SenderID: 7, ReceiverID: 9}, ""},
		{"typing", `{"type":"typing","sender_id":7,"receiver_id":9}`,
			Inbound{Type: EventTyping, SenderID: 7, ReceiverID: 9}, ""},
		{"join missing user", `{"type":"join"}`, Inbound{}, "user_id is required"},
		{"send missing content", `{"type":"send_message","sender_id":7,"receiver_id":9}`, Inbound{}, "content is required"},
		{"typing missing receiver", `{"type":"typing","sender_id":7}`, Inbound{}, "receiver_id is required"},
		{"negative sender", `{"type":"typing","sender_id":-1,"receiver_id":9}`, Inbound{}, "sender_id must be positive"},
		{"unknown type", `{"type":"dance"}`, Inbound{}, "unknown event type"},
		{"missing type", `{"user_id":7}`, Inbound{}, "event type is required"},
		{"malformed json", `{not json`, Inbound{}, "malformed event"},
		{"wrong field type", `{"type":"join","user_id":"seven"}`, Inbound{}, "malformed event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.raw))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	b, err := Encode(EventTyping, map[string]int64{"sender_id": 7})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env struct {
		Type string           `json:"type"`
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != EventTyping || env.Data["sender_id"] != 7 {
		t.Errorf("unexpected envelope: %s", b)
	}
}
