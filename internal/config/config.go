package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	FormatMsgpack = "msgpack"
	FormatJSON    = "json"

	HardcodedVersion = "0.3.0"
	DefaultPath      = "config.toml"
	PathEnv          = "VMONITOR_CONFIG_PATH"
	envPrefix        = "VMONITOR"
)

type Config struct {
	AgentVersion    string
	Hostname        string
	Interval        time.Duration
	Format          string
	Connection      ConnectionPolicy
	Endpoints       []Endpoint
	ProbeListenAddr string
	HealthInterval  time.Duration
	ShutdownTimeout time.Duration
	ConnectTimeout  time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	ReadLimit       int64
	TLSSkipVerify   bool
	TLSCAPath       string
	TLSCertPath     string
	TLSKeyPath      string
	LogJSON         bool
	LogLevel        string
}

// ConnectionPolicy governs reconnect backoff. MaxRetries < 0 means unlimited.
type ConnectionPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// Delay returns min(BaseDelay * 2^(attempt-1), MaxDelay).
func (p ConnectionPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if d > p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Exhausted reports whether a session on its attempt-th consecutive failure must stop.
func (p ConnectionPolicy) Exhausted(attempt int) bool {
	return p.MaxRetries >= 0 && attempt > p.MaxRetries
}

// Secret hides its value from every formatting path; use Reveal to read it.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) Reveal() string { return string(s) }

func (Secret) String() string { return redacted }

func (Secret) GoString() string { return redacted }

func (Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

type Endpoint struct {
	Name       string
	Server     string
	Secret     Secret
	Enabled    bool
	Connection ConnectionPolicy
	// Overridden is set when the endpoint declares its own connection section.
	Overridden bool
}

func (e Endpoint) URL() (*url.URL, error) {
	u, err := url.Parse(e.Server)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", e.Name, ErrInvalidServer)
	}
	return u, nil
}

// DisplayServer is the server URI without query or userinfo password, safe to print.
func (e Endpoint) DisplayServer() string {
	return displayServer(e.Server)
}

func (e Endpoint) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", e.Name),
		slog.String("server", e.DisplayServer()),
		slog.Bool("enabled", e.Enabled),
	)
}

func displayServer(server string) string {
	u, err := url.Parse(server)
	if err != nil {
		return "[unparseable]"
	}
	u.RawQuery = ""
	return u.Redacted()
}

func (c Config) EnabledEndpoints() []Endpoint {
	out := make([]Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.Enabled {
			out = append(out, ep)
		}
	}
	return out
}

type filePolicy struct {
	BaseDelay  *time.Duration `mapstructure:"base_delay"`
	MaxDelay   *time.Duration `mapstructure:"max_delay"`
	MaxRetries *int           `mapstructure:"max_retries"`
}

type fileEndpoint struct {
	Name       string      `mapstructure:"name"`
	Server     string      `mapstructure:"server"`
	Secret     string      `mapstructure:"secret"`
	Enabled    *bool       `mapstructure:"enabled"`
	Connection *filePolicy `mapstructure:"connection"`
}

type fileTLS struct {
	SkipVerify bool   `mapstructure:"skip_verify"`
	CAPath     string `mapstructure:"ca_path"`
	CertPath   string `mapstructure:"cert_path"`
	KeyPath    string `mapstructure:"key_path"`
}

type fileConfig struct {
	Interval        time.Duration  `mapstructure:"interval"`
	Format          string         `mapstructure:"format"`
	Connection      filePolicy     `mapstructure:"connection"`
	Endpoints       []fileEndpoint `mapstructure:"endpoints"`
	ProbeListenAddr string         `mapstructure:"probe_listen_addr"`
	HealthInterval  time.Duration  `mapstructure:"health_interval"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout"`
	ConnectTimeout  time.Duration  `mapstructure:"connect_timeout"`
	WriteTimeout    time.Duration  `mapstructure:"write_timeout"`
	PingInterval    time.Duration  `mapstructure:"ping_interval"`
	ReadLimit       int64          `mapstructure:"read_limit"`
	TLS             fileTLS        `mapstructure:"tls"`
	LogJSON         bool           `mapstructure:"log_json"`
	LogLevel        string         `mapstructure:"log_level"`
}

// Load reads the config file at path, applies VMONITOR_* environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return fromViper(v)
}

// Parse is Load for an in-memory document; typ is a viper config type (toml, yaml, json).
func Parse(r io.Reader, typ string) (Config, error) {
	v := newViper()
	v.SetConfigType(typ)
	if err := v.ReadConfig(r); err != nil {
		return Config{}, fmt.Errorf("parse %s config: %w", typ, err)
	}
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("interval", time.Second)
	v.SetDefault("format", FormatMsgpack)
	v.SetDefault("connection.base_delay", time.Second)
	v.SetDefault("connection.max_delay", 60*time.Second)
	v.SetDefault("connection.max_retries", -1)
	v.SetDefault("probe_listen_addr", "127.0.0.1:9465")
	v.SetDefault("health_interval", 30*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("write_timeout", 5*time.Second)
	v.SetDefault("ping_interval", 15*time.Second)
	v.SetDefault("read_limit", int64(1<<20))
	v.SetDefault("tls.skip_verify", false)
	v.SetDefault("tls.ca_path", "")
	v.SetDefault("tls.cert_path", "")
	v.SetDefault("tls.key_path", "")
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	var raw fileConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(durationHook))
	if err := v.Unmarshal(&raw, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{
		AgentVersion:    HardcodedVersion,
		Hostname:        hostname,
		Interval:        raw.Interval,
		Format:          strings.ToLower(strings.TrimSpace(raw.Format)),
		Connection:      raw.Connection.resolve(ConnectionPolicy{}),
		ProbeListenAddr: strings.TrimSpace(raw.ProbeListenAddr),
		HealthInterval:  raw.HealthInterval,
		ShutdownTimeout: raw.ShutdownTimeout,
		ConnectTimeout:  raw.ConnectTimeout,
		WriteTimeout:    raw.WriteTimeout,
		PingInterval:    raw.PingInterval,
		ReadLimit:       raw.ReadLimit,
		TLSSkipVerify:   raw.TLS.SkipVerify,
		TLSCAPath:       raw.TLS.CAPath,
		TLSCertPath:     raw.TLS.CertPath,
		TLSKeyPath:      raw.TLS.KeyPath,
		LogJSON:         raw.LogJSON,
		LogLevel:        strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}
	for _, fe := range raw.Endpoints {
		cfg.Endpoints = append(cfg.Endpoints, fe.resolve(cfg.Connection))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p filePolicy) resolve(base ConnectionPolicy) ConnectionPolicy {
	out := base
	if p.BaseDelay != nil {
		out.BaseDelay = *p.BaseDelay
	}
	if p.MaxDelay != nil {
		out.MaxDelay = *p.MaxDelay
	}
	if p.MaxRetries != nil {
		out.MaxRetries = *p.MaxRetries
	}
	return out
}

func (fe fileEndpoint) resolve(global ConnectionPolicy) Endpoint {
	ep := Endpoint{
		Name:       strings.TrimSpace(fe.Name),
		Server:     strings.TrimSpace(fe.Server),
		Secret:     Secret(fe.Secret),
		Enabled:    true,
		Connection: global,
	}
	if fe.Enabled != nil {
		ep.Enabled = *fe.Enabled
	}
	if fe.Connection != nil {
		ep.Connection = fe.Connection.resolve(global)
		ep.Overridden = true
	}
	return ep
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var problems []error
	add := func(err error) { problems = append(problems, err) }

	if strings.TrimSpace(c.AgentVersion) == "" {
		add(errors.New("agent version must not be empty"))
	}
	if c.Interval <= 0 {
		add(fmt.Errorf("interval: %w", ErrInvalidDuration))
	}
	switch c.Format {
	case FormatMsgpack, FormatJSON:
	default:
		add(fmt.Errorf("format %q: %w", c.Format, ErrInvalidFormat))
	}
	if err := validatePolicy(c.Connection); err != nil {
		add(fmt.Errorf("connection: %w", err))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"health_interval", c.HealthInterval},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"connect_timeout", c.ConnectTimeout},
		{"write_timeout", c.WriteTimeout},
		{"ping_interval", c.PingInterval},
	} {
		if d.value <= 0 {
			add(fmt.Errorf("%s: %w", d.name, ErrInvalidDuration))
		}
	}
	// a single connect or write must fit in the shutdown grace period
	if c.ShutdownTimeout > 0 {
		if c.ConnectTimeout > c.ShutdownTimeout {
			add(fmt.Errorf("connect_timeout %s exceeds shutdown_timeout %s: %w", c.ConnectTimeout, c.ShutdownTimeout, ErrInvalidDuration))
		}
		if c.WriteTimeout > c.ShutdownTimeout {
			add(fmt.Errorf("write_timeout %s exceeds shutdown_timeout %s: %w", c.WriteTimeout, c.ShutdownTimeout, ErrInvalidDuration))
		}
	}
	if c.ReadLimit <= 0 {
		add(errors.New("read_limit must be > 0"))
	}

	seen := make(map[string]struct{}, len(c.Endpoints))
	enabled := 0
	for i, ep := range c.Endpoints {
		if _, dup := seen[ep.Name]; dup && ep.Name != "" {
			add(fmt.Errorf("endpoint %q: %w", ep.Name, ErrDuplicateEndpoint))
		}
		seen[ep.Name] = struct{}{}
		if err := ValidateEndpoint(ep); err != nil {
			if ep.Name == "" {
				err = fmt.Errorf("endpoints[%d]: %w", i, err)
			}
			add(err)
		}
		if ep.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		add(ErrNoEnabledEndpoints)
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// ValidateEndpoint checks one endpoint in isolation. Errors never carry the secret.
func ValidateEndpoint(ep Endpoint) error {
	var problems []error
	if ep.Name == "" {
		problems = append(problems, ErrMissingName)
	}
	u, err := url.Parse(ep.Server)
	switch {
	case ep.Server == "" || err != nil:
		problems = append(problems, ErrInvalidServer)
	case u.Scheme != "ws" && u.Scheme != "wss":
		problems = append(problems, fmt.Errorf("scheme %q: %w", u.Scheme, ErrInvalidServer))
	case u.Host == "":
		problems = append(problems, fmt.Errorf("missing host: %w", ErrInvalidServer))
	}
	if strings.TrimSpace(ep.Secret.Reveal()) == "" {
		problems = append(problems, ErrMissingSecret)
	}
	if ep.Overridden {
		if err := validatePolicy(ep.Connection); err != nil {
			problems = append(problems, fmt.Errorf("connection: %w", err))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("endpoint %q: %w", ep.Name, errors.Join(problems...))
}

func validatePolicy(p ConnectionPolicy) error {
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be > 0: %w", ErrInvalidPolicy)
	}
	if p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("base_delay %s > max_delay %s: %w", p.BaseDelay, p.MaxDelay, ErrInvalidPolicy)
	}
	if p.MaxRetries < -1 {
		return fmt.Errorf("max_retries %d < -1: %w", p.MaxRetries, ErrInvalidPolicy)
	}
	return nil
}

func (c Config) TLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook accepts Go duration strings ("1m30s") or bare numbers meaning seconds.
func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", s, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int32:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint:
		return time.Duration(v) * time.Second, nil
	case uint32:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}
