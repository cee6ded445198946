package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// KeyInfo describes a non-secret config key for `config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Source string
}

// ShowAll lists the effective non-secret values of cfg and where each came
// from.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		src := cfg.src[s.key]
		if src == "" {
			src = sourceDefault
		}
		val := s.extract(cfg)
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprint(val),
			Source: src,
		})
	}
	return result
}

// SetKey validates value against the key's type and writes it to the config
// file. Secrets cannot be set this way.
func SetKey(key, value string) error {
	s, ok := findSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
	}
	v, err := s.parse(value)
	if err != nil {
		return err
	}
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	return openFileStore(configFilePath()).set(key, v)
}

// ValidKeys returns the sorted non-secret key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	sort.Strings(keys)
	return keys
}
