package model

// HostInfo is the static host description returned for a collector get_info request.
type HostInfo struct {
	OS              string   `json:"os" msgpack:"os"`
	OSVersion       string   `json:"osVersion" msgpack:"osVersion"`
	Arch            string   `json:"arch" msgpack:"arch"`
	Platform        string   `json:"platform" msgpack:"platform"`
	PlatformVersion string   `json:"platformVersion" msgpack:"platformVersion"`
	Kernel          string   `json:"kernel" msgpack:"kernel"`
	Hostname        string   `json:"hostname" msgpack:"hostname"`
	CPU             []string `json:"cpu" msgpack:"cpu"`
	Memory          uint64   `json:"memory" msgpack:"memory"`
	Uptime          uint64   `json:"uptime" msgpack:"uptime"`
	Disk            uint64   `json:"disk" msgpack:"disk"`
	Version         string   `json:"version" msgpack:"version"`
}
