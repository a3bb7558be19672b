package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Overrides holds operator-editable runtime settings that do not belong
// in the environment, following internal/global/config_store.go's
// TOML-backed pattern.
type Overrides struct {
	DashboardBasicAuthUser  string `toml:"dashboard_basic_auth_user"`
	DashboardBasicAuthPass  string `toml:"dashboard_basic_auth_pass"`
	DefaultToolPolicySafe   string `toml:"default_tool_policy_safe"`
	DefaultToolPolicyUnsafe string `toml:"default_tool_policy_unsafe"`
}

func defaultOverrides() Overrides {
	return Overrides{
		DefaultToolPolicySafe:   "Read,Glob,Grep",
		DefaultToolPolicyUnsafe: "Bash,Read,Edit,Write,Glob,Grep",
	}
}

// LoadOrInitOverrides reads path, creating it with defaults if absent.
func LoadOrInitOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		defaults := defaultOverrides()
		if err := SaveOverrides(path, defaults); err != nil {
			return Overrides{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return Overrides{}, err
	}
	var o Overrides
	if err := toml.Unmarshal(data, &o); err != nil {
		return Overrides{}, err
	}
	if o.DefaultToolPolicySafe == "" {
		o.DefaultToolPolicySafe = defaultOverrides().DefaultToolPolicySafe
	}
	if o.DefaultToolPolicyUnsafe == "" {
		o.DefaultToolPolicyUnsafe = defaultOverrides().DefaultToolPolicyUnsafe
	}
	return o, nil
}

// SaveOverrides atomically writes o to path.
func SaveOverrides(path string, o Overrides) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := toml.Marshal(o)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
