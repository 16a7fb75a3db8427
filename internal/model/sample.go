package model

import "time"

// Sample is one host telemetry snapshot. Sequence is assigned by the sampler and is
// never changed downstream.
type Sample struct {
	Sequence  uint64
	Timestamp time.Time
	Metrics   Metrics
}

type Metrics struct {
	Uptime  uint64      `json:"uptime" msgpack:"uptime"`
	System  SystemInfo  `json:"system" msgpack:"system"`
	Network NetworkInfo `json:"network" msgpack:"network"`
	Disk    DiskInfo    `json:"disk" msgpack:"disk"`
}

type LoadAvg struct {
	One     float64 `json:"one" msgpack:"one"`
	Five    float64 `json:"five" msgpack:"five"`
	Fifteen float64 `json:"fifteen" msgpack:"fifteen"`
}

type SystemInfo struct {
	CPUUsage     float64 `json:"cpuUsage" msgpack:"cpuUsage"`
	CPUCores     uint32  `json:"cpuCores" msgpack:"cpuCores"`
	MemoryUsed   uint64  `json:"memoryUsed" msgpack:"memoryUsed"`
	MemoryTotal  uint64  `json:"memoryTotal" msgpack:"memoryTotal"`
	SwapUsed     uint64  `json:"swapUsed" msgpack:"swapUsed"`
	SwapTotal    uint64  `json:"swapTotal" msgpack:"swapTotal"`
	ProcessCount uint32  `json:"processCount" msgpack:"processCount"`
	LoadAvg      LoadAvg `json:"loadAvg" msgpack:"loadAvg"`
}

// NetworkInfo carries byte totals since boot and per-second rates since the previous sample.
type NetworkInfo struct {
	DownloadTraffic uint64  `json:"downloadTraffic" msgpack:"downloadTraffic"`
	UploadTraffic   uint64  `json:"uploadTraffic" msgpack:"uploadTraffic"`
	DownloadRate    float64 `json:"downloadRate" msgpack:"downloadRate"`
	UploadRate      float64 `json:"uploadRate" msgpack:"uploadRate"`
	TCPCount        uint32  `json:"tcpCount" msgpack:"tcpCount"`
	UDPCount        uint32  `json:"udpCount" msgpack:"udpCount"`
}

type DiskInfo struct {
	SpaceUsed  uint64  `json:"spaceUsed" msgpack:"spaceUsed"`
	SpaceTotal uint64  `json:"spaceTotal" msgpack:"spaceTotal"`
	Read       uint64  `json:"read" msgpack:"read"`
	Write      uint64  `json:"write" msgpack:"write"`
	ReadRate   float64 `json:"readRate" msgpack:"readRate"`
	WriteRate  float64 `json:"writeRate" msgpack:"writeRate"`
}
