package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EndpointEntry is the on-disk shape of an endpoint as seen by the edit commands.
type EndpointEntry struct {
	Name    string
	Server  string
	Secret  Secret
	Enabled bool
}

// ListEndpoints returns the endpoints declared in the file without validating the rest
// of the configuration.
func ListEndpoints(path string) ([]EndpointEntry, error) {
	v, err := readForEdit(path, false)
	if err != nil {
		return nil, err
	}
	entries := endpointMaps(v)
	out := make([]EndpointEntry, 0, len(entries))
	for _, m := range entries {
		out = append(out, entryFromMap(m))
	}
	return out, nil
}

// AddEndpoint appends an endpoint, creating the file when it does not exist yet.
func AddEndpoint(path string, entry EndpointEntry) error {
	ep := Endpoint{Name: entry.Name, Server: entry.Server, Secret: entry.Secret, Enabled: entry.Enabled}
	if err := ValidateEndpoint(ep); err != nil {
		return err
	}
	return editEndpoints(path, true, func(entries []map[string]any) ([]map[string]any, error) {
		for _, m := range entries {
			if strings.EqualFold(stringField(m, "name"), entry.Name) {
				return nil, fmt.Errorf("endpoint %q: %w", entry.Name, ErrDuplicateEndpoint)
			}
		}
		return append(entries, map[string]any{
			"name":    entry.Name,
			"server":  entry.Server,
			"secret":  entry.Secret.Reveal(),
			"enabled": entry.Enabled,
		}), nil
	})
}

func RemoveEndpoint(path, name string) error {
	return editEndpoints(path, false, func(entries []map[string]any) ([]map[string]any, error) {
		out := entries[:0]
		found := false
		for _, m := range entries {
			if stringField(m, "name") == name {
				found = true
				continue
			}
			out = append(out, m)
		}
		if !found {
			return nil, fmt.Errorf("endpoint %q: %w", name, ErrEndpointNotFound)
		}
		return out, nil
	})
}

func SetEndpointEnabled(path, name string, enabled bool) error {
	return editEndpoints(path, false, func(entries []map[string]any) ([]map[string]any, error) {
		for _, m := range entries {
			if stringField(m, "name") == name {
				m["enabled"] = enabled
				return entries, nil
			}
		}
		return nil, fmt.Errorf("endpoint %q: %w", name, ErrEndpointNotFound)
	})
}

func editEndpoints(path string, create bool, fn func([]map[string]any) ([]map[string]any, error)) error {
	v, err := readForEdit(path, create)
	if err != nil {
		return err
	}
	entries, err := fn(endpointMaps(v))
	if err != nil {
		return err
	}
	v.Set("endpoints", entries)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func readForEdit(path string, create bool) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigPermissions(0o600)
	if err := v.ReadInConfig(); err != nil {
		if create && errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

func endpointMaps(v *viper.Viper) []map[string]any {
	var out []map[string]any
	switch raw := v.Get("endpoints").(type) {
	case []map[string]any:
		out = append(out, raw...)
	case []any:
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func entryFromMap(m map[string]any) EndpointEntry {
	e := EndpointEntry{
		Name:    stringField(m, "name"),
		Server:  stringField(m, "server"),
		Secret:  Secret(stringField(m, "secret")),
		Enabled: true,
	}
	if b, ok := m["enabled"].(bool); ok {
		e.Enabled = b
	}
	return e
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
