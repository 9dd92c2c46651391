package protocol

import (
	"encoding/hex"
	"encoding/json"

	"moff.io/walletconnect/pkg/errors"
)

var ErrMalformedMessage = errors.New("malformed socket message")

// SocketMessageKind tells the bridge whether a message publishes or subscribes.
type SocketMessageKind string

const (
	KindPub SocketMessageKind = "pub"
	KindSub SocketMessageKind = "sub"
)

// EncryptionPayload is the sealed form of a JSON-RPC message.
// HMAC authenticates Data followed by IV.
type EncryptionPayload struct {
	Data []byte
	HMAC []byte
	IV   []byte
}

type encryptionPayloadWire struct {
	Data string `json:"data"`
	HMAC string `json:"hmac"`
	IV   string `json:"iv"`
}

func (p *EncryptionPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(encryptionPayloadWire{
		Data: hex.EncodeToString(p.Data),
		HMAC: hex.EncodeToString(p.HMAC),
		IV:   hex.EncodeToString(p.IV),
	})
}

// AES-CBC block and HMAC-SHA256 sizes.
const (
	payloadIVSize   = 16
	payloadHMACSize = 32
)

func (p *EncryptionPayload) UnmarshalJSON(data []byte) error {
	var wire struct {
		Data *string `json:"data"`
		HMAC *string `json:"hmac"`
		IV   *string `json:"iv"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "encryption payload: %v", err)
	}
	if wire.Data == nil || wire.HMAC == nil || wire.IV == nil {
		return errors.Wrap(ErrMalformedMessage, "encryption payload needs data, hmac and iv")
	}
	var out EncryptionPayload
	var err error
	if out.Data, err = hex.DecodeString(*wire.Data); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "data hex: %v", err)
	}
	if out.HMAC, err = hex.DecodeString(*wire.HMAC); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "hmac hex: %v", err)
	}
	if out.IV, err = hex.DecodeString(*wire.IV); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "iv hex: %v", err)
	}
	if len(out.IV) != payloadIVSize {
		return errors.Wrapf(ErrMalformedMessage, "iv of %d bytes", len(out.IV))
	}
	if len(out.HMAC) != payloadHMACSize {
		return errors.Wrapf(ErrMalformedMessage, "hmac of %d bytes", len(out.HMAC))
	}
	*p = out
	return nil
}

// SocketMessage is the envelope exchanged with the bridge server.
// https://docs.walletconnect.com/tech-spec#websocket-messages
type SocketMessage struct {
	Topic   Topic
	Kind    SocketMessageKind
	Payload *EncryptionPayload
	// Silent is carried for bridge compatibility only.
	Silent bool
}

// The payload travels as a JSON document embedded in a JSON string, and ""
// stands for no payload. Bridges and other clients expect exactly this.
type socketMessageWire struct {
	Topic   Topic             `json:"topic"`
	Kind    SocketMessageKind `json:"type"`
	Payload string            `json:"payload"`
	Silent  bool              `json:"silent"`
}

func (m *SocketMessage) MarshalJSON() ([]byte, error) {
	wire := socketMessageWire{
		Topic:  m.Topic,
		Kind:   m.Kind,
		Silent: m.Silent,
	}
	if m.Payload != nil {
		embedded, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal encryption payload")
		}
		wire.Payload = string(embedded)
	}
	return json.Marshal(wire)
}

func (m *SocketMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Topic   *Topic            `json:"topic"`
		Kind    SocketMessageKind `json:"type"`
		Payload *string           `json:"payload"`
		Silent  bool              `json:"silent"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "envelope: %v", err)
	}
	if wire.Topic == nil {
		return errors.Wrap(ErrMalformedMessage, "missing topic")
	}
	switch wire.Kind {
	case KindPub, KindSub:
	default:
		return errors.Wrapf(ErrMalformedMessage, "unknown message type %q", wire.Kind)
	}
	msg := SocketMessage{
		Topic:  *wire.Topic,
		Kind:   wire.Kind,
		Silent: wire.Silent,
	}
	if wire.Payload != nil && *wire.Payload != "" {
		var payload EncryptionPayload
		if err := json.Unmarshal([]byte(*wire.Payload), &payload); err != nil {
			return errors.Wrapf(ErrMalformedMessage, "embedded payload: %v", err)
		}
		msg.Payload = &payload
	}
	*m = msg
	return nil
}

// Encode returns the wire form of m.
func (m *SocketMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeSocketMessage parses a bridge frame. Every failure matches ErrMalformedMessage.
func DecodeSocketMessage(data []byte) (*SocketMessage, error) {
	var msg SocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrMalformedMessage, "%v", err)
	}
	return &msg, nil
}
