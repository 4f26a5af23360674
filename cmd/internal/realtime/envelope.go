package realtime

import (
	"encoding/json"
	"time"

	v1 "parley/shared/contracts/realtime/v1"
)

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}

// envelopeFor renders an update as a wire envelope.
func envelopeFor(u Update) v1.Envelope {
	switch v := u.(type) {
	case MessageUpdate:
		payload, _ := json.Marshal(v1.MessageNewPayload{
			ChannelID: v.Message.ChannelID,
			MessageID: v.Message.ID,
			EventID:   v.EventID,
			Sender:    v.Message.SenderID,
			Text:      v.Message.Text,
			ServerTS:  v.Message.CreatedAt,
		})
		return newEnvelope(v1.TypeMessageNew, payload, v.Message.CreatedAt)
	case KeepAlive:
		payload, _ := json.Marshal(v1.KeepAlivePayload{ServerTS: v.At})
		return newEnvelope(v1.TypeKeepAlive, payload, v.At)
	default:
		payload, _ := json.Marshal(v1.ErrorPayload{Code: "internal", Message: "unknown update"})
		return newEnvelope(v1.TypeError, payload, time.Now().UTC())
	}
}
