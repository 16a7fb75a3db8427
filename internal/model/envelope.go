package model

type MessageType string

const (
	MessageTypeMetrics  MessageType = "metrics"
	MessageTypeHostInfo MessageType = "vm_info"

	// Inbound control frames sent by collectors.
	MessageTypeAck       MessageType = "ack"
	MessageTypeConfig    MessageType = "config"
	MessageTypeTerminate MessageType = "terminate"
	MessageTypeGetInfo   MessageType = "get_info"
)

// Identity binds an envelope to the agent run and the endpoint it is addressed to.
type Identity struct {
	AgentID  string `json:"agentId" msgpack:"agentId"`
	Endpoint string `json:"endpoint" msgpack:"endpoint"`
}
