package version

type Info struct {
	AgentID         string `json:"agent_id"`
	AgentVersion    string `json:"agent_version"`
	GoVersion       string `json:"go_version"`
	OS              string `json:"os"`
	Arch            string `json:"arch"`
	Format          string `json:"format"`
	ProbeListenAddr string `json:"probe_listen_addr"`
	CheckedAtUnix   int64  `json:"checked_at_unix"`
}
