// Package config holds the read-only parameter view that travels with a channel.
//
// A Config is a flat string map in the spirit of a URL query: "timeout=3000&codec=binary".
// Method-scoped overrides are written as "<method>.<key>", e.g. "Notify.async=true", and win
// over the plain key when looked up through the Method* getters. A Config is never mutated
// after construction; With returns a modified copy.
package config

import (
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known keys.
const (
	CodecKey     = "codec"
	GroupKey     = "group"
	TokenKey     = "token"
	TimeoutKey   = "timeout"
	AsyncKey     = "async"
	SentKey      = "sent"
	HeartbeatKey = "heartbeat"
)

// DefaultTimeout is used by request paths when no timeout is configured.
const DefaultTimeout = time.Second

type Config struct {
	params map[string]string
}

// New builds a Config from params. The map is copied.
func New(params map[string]string) *Config {
	return &Config{params: maps.Clone(params)}
}

// Empty returns a Config with no parameters.
func Empty() *Config {
	return &Config{}
}

// With returns a copy of c with key set to value.
func (c *Config) With(key, value string) *Config {
	p := maps.Clone(c.params)
	if p == nil {
		p = make(map[string]string, 1)
	}
	p[key] = value
	return &Config{params: p}
}

// Merge returns a copy of c overlaid with params.
func (c *Config) Merge(params map[string]string) *Config {
	p := maps.Clone(c.params)
	if p == nil {
		p = make(map[string]string, len(params))
	}
	maps.Copy(p, params)
	return &Config{params: p}
}

// Subset returns a copy holding only the listed keys that are present in c.
func (c *Config) Subset(keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := c.params[k]; ok {
			out[k] = v
		}
	}
	return out
}

func (c *Config) Get(key string) string {
	return c.params[key]
}

func (c *Config) Has(key string) bool {
	_, ok := c.params[key]
	return ok
}

func (c *Config) Keys() []string {
	var keys []string
	for k := range c.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) GetDefault(key, def string) string {
	if v, ok := c.params[key]; ok && v != "" {
		return v
	}
	return def
}

func (c *Config) Bool(key string, def bool) bool {
	return parseBool(c.params[key], def)
}

func (c *Config) Int(key string, def int) int {
	return parseInt(c.params[key], def)
}

func (c *Config) Duration(key string, def time.Duration) time.Duration {
	return parseDuration(c.params[key], def)
}

// MethodGet returns "<method>.<key>" when set, otherwise key.
func (c *Config) MethodGet(method, key string) string {
	if v, ok := c.params[method+"."+key]; ok && v != "" {
		return v
	}
	return c.params[key]
}

func (c *Config) MethodBool(method, key string, def bool) bool {
	return parseBool(c.MethodGet(method, key), def)
}

func (c *Config) MethodInt(method, key string, def int) int {
	return parseInt(c.MethodGet(method, key), def)
}

func (c *Config) MethodDuration(method, key string, def time.Duration) time.Duration {
	return parseDuration(c.MethodGet(method, key), def)
}

// String renders the parameters as a sorted query string.
func (c *Config) String() string {
	var sb strings.Builder
	for i, k := range c.Keys() {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(c.params[k])
	}
	return sb.String()
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parseDuration accepts Go duration syntax ("1.5s") or a bare integer of milliseconds.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
