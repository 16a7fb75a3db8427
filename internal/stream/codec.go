package stream

import (
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
)

// Codec encodes one wire format. Binary (MessagePack) and text (JSON) are the only variants;
// the choice is made once from config.
type Codec interface {
	Format() string
	// MessageType is the WebSocket frame type that carries this format.
	MessageType() websocket.MessageType

	marshal(v any) ([]byte, error)
	unmarshal(b []byte, v any) error
	writeFrame(h header, data []byte) ([]byte, error)
	readFrame(b []byte) (header, []byte, error)
}

// header is the routing and authentication part shared by every frame.
type header struct {
	Type      model.MessageType
	AgentID   string
	Endpoint  string
	Sequence  uint64
	Timestamp int64
	Signature string
}

var (
	jsonFormat    Codec = jsonCodec{}
	msgpackFormat Codec = msgpackCodec{}
)

func NewCodec(format string) (Codec, error) {
	switch format {
	case config.FormatMsgpack:
		return msgpackFormat, nil
	case config.FormatJSON:
		return jsonFormat, nil
	default:
		return nil, fmt.Errorf("unsupported format %q: %w", format, config.ErrInvalidFormat)
	}
}

// CodecForMessageType picks the decoder for an inbound frame by its frame type.
func CodecForMessageType(typ websocket.MessageType) Codec {
	if typ == websocket.MessageBinary {
		return msgpackFormat
	}
	return jsonFormat
}

type jsonFrame struct {
	Type      model.MessageType `json:"type"`
	AgentID   string            `json:"agentId,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Sequence  uint64            `json:"sequence,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Signature string            `json:"signature,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Format() string                     { return config.FormatJSON }
func (jsonCodec) MessageType() websocket.MessageType { return websocket.MessageText }

func (jsonCodec) marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

func (jsonCodec) writeFrame(h header, data []byte) ([]byte, error) {
	return json.Marshal(jsonFrame{
		Type:      h.Type,
		AgentID:   h.AgentID,
		Endpoint:  h.Endpoint,
		Sequence:  h.Sequence,
		Timestamp: h.Timestamp,
		Signature: h.Signature,
		Data:      data,
	})
}

func (jsonCodec) readFrame(b []byte) (header, []byte, error) {
	var f jsonFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return header{}, nil, err
	}
	return header{
		Type:      f.Type,
		AgentID:   f.AgentID,
		Endpoint:  f.Endpoint,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
		Signature: f.Signature,
	}, f.Data, nil
}

type msgpackFrame struct {
	Type      model.MessageType  `msgpack:"type"`
	AgentID   string             `msgpack:"agentId,omitempty"`
	Endpoint  string             `msgpack:"endpoint,omitempty"`
	Sequence  uint64             `msgpack:"sequence,omitempty"`
	Timestamp int64              `msgpack:"timestamp,omitempty"`
	Signature string             `msgpack:"signature,omitempty"`
	Data      msgpack.RawMessage `msgpack:"data,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Format() string                     { return config.FormatMsgpack }
func (msgpackCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (msgpackCodec) marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec) unmarshal(b []byte, v any) error { return msgpack.Unmarshal(b, v) }

func (msgpackCodec) writeFrame(h header, data []byte) ([]byte, error) {
	return msgpack.Marshal(&msgpackFrame{
		Type:      h.Type,
		AgentID:   h.AgentID,
		Endpoint:  h.Endpoint,
		Sequence:  h.Sequence,
		Timestamp: h.Timestamp,
		Signature: h.Signature,
		Data:      data,
	})
}

func (msgpackCodec) readFrame(b []byte) (header, []byte, error) {
	var f msgpackFrame
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return header{}, nil, err
	}
	return header{
		Type:      f.Type,
		AgentID:   f.AgentID,
		Endpoint:  f.Endpoint,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
		Signature: f.Signature,
	}, []byte(f.Data), nil
}
