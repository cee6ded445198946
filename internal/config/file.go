package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// fileStore is the flat JSON config file. Keys are the dotted config keys;
// values may be JSON strings, numbers or bools.
type fileStore struct {
	path string
	data map[string]any
}

// configFilePath honours SEOAGENT_CONFIG before the XDG location.
func configFilePath() string {
	if p := os.Getenv("SEOAGENT_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "seoagent", "config.json")
}

// openFileStore reads path. A missing file is an empty store; an unreadable
// or corrupt one is reported and treated as empty.
func openFileStore(path string) *fileStore {
	f := &fileStore{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
		return f
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
		f.data = make(map[string]any)
	}
	return f
}

// lookup returns the value for key rendered as the string its keySpec parses.
func (f *fileStore) lookup(key string) (string, bool) {
	v, ok := f.data[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}
	return fmt.Sprint(v), true
}

// set stores v under key and rewrites the file.
func (f *fileStore) set(key string, v any) error {
	switch val := v.(type) {
	case int, bool, string:
		f.data[key] = val
	default:
		f.data[key] = fmt.Sprint(val)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}
