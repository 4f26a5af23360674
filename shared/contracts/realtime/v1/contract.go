package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	Version = 1

	TypeHello            = "hello"
	TypeHelloAck         = "hello.ack"
	TypeChannelSubscribe = "channel.subscribe"
	TypeMessageSend      = "message.send"
	TypeMessageNew       = "message.new"
	TypeKeepAlive        = "keepalive"
	TypeError            = "error"
)

var AllowedTypes = map[string]struct{}{
	TypeHello:            {},
	TypeHelloAck:         {},
	TypeChannelSubscribe: {},
	TypeMessageSend:      {},
	TypeMessageNew:       {},
	TypeKeepAlive:        {},
	TypeError:            {},
}

type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := AllowedTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.TS.IsZero() {
		return errors.New("missing ts")
	}
	if e.Payload == nil {
		return errors.New("missing payload")
	}
	return nil
}

type HelloPayload struct {
	Token string `json:"token,omitempty"`
}

type HelloAckPayload struct {
	UserID string `json:"user_id"`
}

type ChannelSubscribePayload struct {
	ChannelID string `json:"channel_id"`
}

type MessageSendPayload struct {
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

type MessageNewPayload struct {
	ChannelID string    `json:"channel_id"`
	MessageID string    `json:"message_id"`
	EventID   int64     `json:"event_id"`
	Sender    string    `json:"sender_id"`
	Text      string    `json:"text"`
	ServerTS  time.Time `json:"server_ts"`
}

type KeepAlivePayload struct {
	ServerTS time.Time `json:"server_ts"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
