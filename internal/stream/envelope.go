package stream

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrBadSignature       = errors.New("signature mismatch")
)

// DecodeError describes an inbound frame that could not be used. It is logged and discarded.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Envelope is one encoded outbound message. Its bytes are never modified after Encode.
type Envelope struct {
	payload  []byte
	codec    Codec
	msgType  model.MessageType
	sequence uint64
}

func (e Envelope) Bytes() []byte {
	return append([]byte(nil), e.payload...)
}

func (e Envelope) Len() int                         { return len(e.payload) }
func (e Envelope) Format() string                   { return e.codec.Format() }
func (e Envelope) FrameType() websocket.MessageType { return e.codec.MessageType() }
func (e Envelope) Type() model.MessageType          { return e.msgType }
func (e Envelope) Sequence() uint64                 { return e.sequence }

// Encode wraps a sample into a signed metrics envelope addressed to one endpoint.
func Encode(codec Codec, sample *model.Sample, id model.Identity, secret config.Secret) (Envelope, error) {
	if sample == nil {
		return Envelope{}, errors.New("encode: nil sample")
	}
	return encode(codec, header{
		Type:      model.MessageTypeMetrics,
		AgentID:   id.AgentID,
		Endpoint:  id.Endpoint,
		Sequence:  sample.Sequence,
		Timestamp: sample.Timestamp.UnixMilli(),
	}, sample.Metrics, secret)
}

// EncodeHostInfo builds the signed reply to a collector get_info request.
func EncodeHostInfo(codec Codec, info model.HostInfo, id model.Identity, at time.Time, secret config.Secret) (Envelope, error) {
	return encode(codec, header{
		Type:      model.MessageTypeHostInfo,
		AgentID:   id.AgentID,
		Endpoint:  id.Endpoint,
		Timestamp: at.UnixMilli(),
	}, info, secret)
}

func encode(codec Codec, h header, body any, secret config.Secret) (Envelope, error) {
	data, err := codec.marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s data: %w", h.Type, err)
	}
	h.Signature = sign(secret, h, data)
	payload, err := codec.writeFrame(h, data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s frame: %w", h.Type, err)
	}
	return Envelope{payload: payload, codec: codec, msgType: h.Type, sequence: h.Sequence}, nil
}

// DecodeSample reverses Encode after checking the signature against secret.
func DecodeSample(codec Codec, b []byte, secret config.Secret) (*model.Sample, model.Identity, error) {
	h, data, err := codec.readFrame(b)
	if err != nil {
		return nil, model.Identity{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	if h.Type != model.MessageTypeMetrics {
		return nil, model.Identity{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: %q", ErrUnknownMessageType, h.Type)}
	}
	if !verify(secret, h, data) {
		return nil, model.Identity{}, &DecodeError{Format: codec.Format(), Err: ErrBadSignature}
	}
	var metrics model.Metrics
	if err := codec.unmarshal(data, &metrics); err != nil {
		return nil, model.Identity{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	sample := &model.Sample{
		Sequence:  h.Sequence,
		Timestamp: time.UnixMilli(h.Timestamp).UTC(),
		Metrics:   metrics,
	}
	return sample, model.Identity{AgentID: h.AgentID, Endpoint: h.Endpoint}, nil
}

// ControlMessage is a collector-to-agent frame.
type ControlMessage struct {
	Type model.MessageType
	// Sequence is the acknowledged sample for ack frames.
	Sequence uint64
	// MetricsInterval is the interval a config frame asks for.
	MetricsInterval time.Duration
	Reason          string
}

type controlData struct {
	Sequence        uint64  `json:"sequence" msgpack:"sequence"`
	MetricsInterval float64 `json:"metrics_interval" msgpack:"metrics_interval"`
	Reason          string  `json:"reason" msgpack:"reason"`
}

func DecodeControl(codec Codec, b []byte) (ControlMessage, error) {
	h, data, err := codec.readFrame(b)
	if err != nil {
		return ControlMessage{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	msg := ControlMessage{Type: h.Type}
	switch h.Type {
	case model.MessageTypeAck, model.MessageTypeConfig, model.MessageTypeTerminate:
	case model.MessageTypeGetInfo:
		return msg, nil
	default:
		return ControlMessage{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: %q", ErrUnknownMessageType, h.Type)}
	}

	var body controlData
	if len(data) > 0 {
		if err := codec.unmarshal(data, &body); err != nil {
			return ControlMessage{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
		}
	}
	switch h.Type {
	case model.MessageTypeAck:
		msg.Sequence = body.Sequence
		if msg.Sequence == 0 {
			msg.Sequence = h.Sequence
		}
	case model.MessageTypeConfig:
		if body.MetricsInterval <= 0 {
			return ControlMessage{}, &DecodeError{Format: codec.Format(), Err: fmt.Errorf("%w: metrics_interval must be positive", ErrMalformedFrame)}
		}
		msg.MetricsInterval = time.Duration(body.MetricsInterval * float64(time.Second))
	case model.MessageTypeTerminate:
		msg.Reason = body.Reason
	}
	return msg, nil
}

// EncodeControl builds a collector-side control frame. The agent never sends these; collectors
// and tests do.
func EncodeControl(codec Codec, msg ControlMessage) ([]byte, error) {
	var data []byte
	if msg.Type != model.MessageTypeGetInfo {
		body := controlData{Sequence: msg.Sequence, MetricsInterval: msg.MetricsInterval.Seconds(), Reason: msg.Reason}
		var err error
		if data, err = codec.marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s data: %w", msg.Type, err)
		}
	}
	return codec.writeFrame(header{Type: msg.Type}, data)
}

// sign is hex(HMAC-SHA256(secret, type|agentId|endpoint|sequence|timestamp|data)).
func sign(secret config.Secret, h header, data []byte) string {
	return hex.EncodeToString(mac(secret, h, data))
}

func verify(secret config.Secret, h header, data []byte) bool {
	got, err := hex.DecodeString(h.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac(secret, h, data))
}

func mac(secret config.Secret, h header, data []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret.Reveal()))
	for _, field := range []string{
		string(h.Type),
		h.AgentID,
		h.Endpoint,
		strconv.FormatUint(h.Sequence, 10),
		strconv.FormatInt(h.Timestamp, 10),
	} {
		m.Write([]byte(field))
		m.Write([]byte{'|'})
	}
	m.Write(data)
	return m.Sum(nil)
}
