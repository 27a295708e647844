package casregistry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Options holds backend settings keyed by option name, as strings. Values
// come from flags or from a config file's per-backend map.
type Options map[string]string

// String returns the trimmed value of key.
func (o Options) String(key string) string {
	return strings.TrimSpace(o[key])
}

// Require returns the value of key or an error naming the missing flag.
func (o Options) Require(key string) (string, error) {
	v := o.String(key)
	if v == "" {
		return "", fmt.Errorf("missing --%s", key)
	}
	return v, nil
}

// Duration parses key as a time.Duration. An empty value is zero.
func (o Options) Duration(key string) (time.Duration, error) {
	v := o.String(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", key, err)
	}
	return d, nil
}

// Int parses key as a base-10 integer. An empty value is zero.
func (o Options) Int(key string) (int, error) {
	v := o.String(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", key, err)
	}
	return n, nil
}
