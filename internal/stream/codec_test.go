package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"vmonitor-agent/internal/config"
	"vmonitor-agent/internal/model"
)

func fullSample(seq uint64) *model.Sample {
	return &model.Sample{
		Sequence:  seq,
		Timestamp: time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC),
		Metrics: model.Metrics{
			Uptime: 86_400,
			System: model.SystemInfo{
				CPUUsage:     37.25,
				CPUCores:     8,
				MemoryUsed:   3 << 30,
				MemoryTotal:  16 << 30,
				SwapUsed:     1 << 20,
				SwapTotal:    2 << 30,
				ProcessCount: 312,
				LoadAvg:      model.LoadAvg{One: 0.5, Five: 0.75, Fifteen: 1.125},
			},
			Network: model.NetworkInfo{
				DownloadTraffic: 1 << 40,
				UploadTraffic:   1<<63 + 7,
				DownloadRate:    12_345.678,
				UploadRate:      0.1,
				TCPCount:        42,
				UDPCount:        7,
			},
			Disk: model.DiskInfo{
				SpaceUsed:  100 << 30,
				SpaceTotal: 500 << 30,
				Read:       123_456_789,
				Write:      987_654_321,
				ReadRate:   1024.5,
				WriteRate:  2048.25,
			},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	secret := config.Secret("s3cr3t")
	id := model.Identity{AgentID: "agent-1", Endpoint: "primary"}

	for _, format := range []string{config.FormatMsgpack, config.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			codec, err := NewCodec(format)
			require.NoError(t, err)
			require.Equal(t, format, codec.Format())

			in := fullSample(41)
			env, err := Encode(codec, in, id, secret)
			require.NoError(t, err)
			require.Equal(t, model.MessageTypeMetrics, env.Type())
			require.Equal(t, uint64(41), env.Sequence())
			require.Equal(t, codec.MessageType(), env.FrameType())
			require.NotContains(t, string(env.Bytes()), "s3cr3t")

			out, gotID, err := DecodeSample(CodecForMessageType(env.FrameType()), env.Bytes(), secret)
			require.NoError(t, err)
			require.Equal(t, id, gotID)
			require.Equal(t, in.Sequence, out.Sequence)
			require.True(t, in.Timestamp.Equal(out.Timestamp))
			require.Equal(t, in.Metrics, out.Metrics)
		})
	}
}

func TestCodecFrameTypes(t *testing.T) {
	require.Equal(t, config.FormatMsgpack, CodecForMessageType(websocket.MessageBinary).Format())
	require.Equal(t, config.FormatJSON, CodecForMessageType(websocket.MessageText).Format())

	_, err := NewCodec("xml")
	require.ErrorIs(t, err, config.ErrInvalidFormat)
}

func TestDecodeSampleRejects(t *testing.T) {
	secret := config.Secret("right")
	id := model.Identity{AgentID: "a", Endpoint: "e"}

	for _, format := range []string{config.FormatMsgpack, config.FormatJSON} {
		t.Run(format, func(t *testing.T) {
			codec, err := NewCodec(format)
			require.NoError(t, err)
			env, err := Encode(codec, fullSample(1), id, secret)
			require.NoError(t, err)

			_, _, err = DecodeSample(codec, env.Bytes(), config.Secret("wrong"))
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			require.ErrorIs(t, err, ErrBadSignature)

			_, _, err = DecodeSample(codec, []byte{0xc1, 0x00, 0xff}, secret)
			require.ErrorIs(t, err, ErrMalformedFrame)

			info, err := EncodeHostInfo(codec, model.HostInfo{Hostname: "h"}, id, time.Now(), secret)
			require.NoError(t, err)
			_, _, err = DecodeSample(codec, info.Bytes(), secret)
			require.ErrorIs(t, err, ErrUnknownMessageType)
		})
	}
}

func TestEnvelopeJSONShape(t *testing.T) {
	codec, err := NewCodec(config.FormatJSON)
	require.NoError(t, err)
	env, err := Encode(codec, fullSample(3), model.Identity{AgentID: "agent", Endpoint: "ep"}, "k")
	require.NoError(t, err)

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Bytes(), &frame))
	for _, key := range []string{"type", "agentId", "endpoint", "sequence", "timestamp", "signature", "data"} {
		require.Contains(t, frame, key)
	}
	require.JSONEq(t, `"metrics"`, string(frame["type"]))
	require.JSONEq(t, `1773500966535`, string(frame["timestamp"]))

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame["data"], &data))
	require.Contains(t, data, "system")
	require.Contains(t, data, "network")
	require.Contains(t, data, "disk")
}

func TestEnvelopeBytesAreCopies(t *testing.T) {
	codec, err := NewCodec(config.FormatJSON)
	require.NoError(t, err)
	env, err := Encode(codec, fullSample(1), model.Identity{}, "k")
	require.NoError(t, err)

	b := env.Bytes()
	b[0] = 'X'
	require.NotEqual(t, b[0], env.Bytes()[0])
}

func TestDecodeControl(t *testing.T) {
	messages := []ControlMessage{
		{Type: model.MessageTypeAck, Sequence: 9},
		{Type: model.MessageTypeConfig, MetricsInterval: 5 * time.Second},
		{Type: model.MessageTypeTerminate, Reason: "agent revoked"},
		{Type: model.MessageTypeGetInfo},
	}
	for _, format := range []string{config.FormatMsgpack, config.FormatJSON} {
		codec, err := NewCodec(format)
		require.NoError(t, err)
		for _, msg := range messages {
			t.Run(format+"/"+string(msg.Type), func(t *testing.T) {
				b, err := EncodeControl(codec, msg)
				require.NoError(t, err)
				got, err := DecodeControl(codec, b)
				require.NoError(t, err)
				require.Equal(t, msg, got)
			})
		}
	}
}

func TestDecodeControlFromCollectorText(t *testing.T) {
	codec := CodecForMessageType(websocket.MessageText)

	msg, err := DecodeControl(codec, []byte(`{"type":"ack","data":{"sequence":7}}`))
	require.NoError(t, err)
	require.Equal(t, uint64(7), msg.Sequence)

	msg, err = DecodeControl(codec, []byte(`{"type":"config","data":{"metrics_interval":2.5}}`))
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, msg.MetricsInterval)

	msg, err = DecodeControl(codec, []byte(`{"type":"get_info"}`))
	require.NoError(t, err)
	require.Equal(t, model.MessageTypeGetInfo, msg.Type)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown type", `{"type":"reboot"}`, ErrUnknownMessageType},
		{"not json", `hello`, ErrMalformedFrame},
		{"bad data", `{"type":"ack","data":"seven"}`, ErrMalformedFrame},
		{"zero interval", `{"type":"config","data":{"metrics_interval":0}}`, ErrMalformedFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeControl(codec, []byte(tt.raw))
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
