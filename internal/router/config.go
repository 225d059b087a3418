package router

import (
	"fmt"
	"strings"
	"time"
)

// PrefixMapping maps any external topic starting with Prefix to an internal topic formed by replacing Prefix with
// Target (Target may be empty, which strips the prefix entirely — the spec's "api/*" -> strip "api/" example).
type PrefixMapping struct {
	Prefix string
	Target string
}

// Config holds the router's topic_mapping table and tunables (spec §4.3).
type Config struct {
	ExactMappings  map[string]string
	PrefixMappings []PrefixMapping
	Timeout        time.Duration
	MaxMessageSize int
}

// DefaultConfig returns the spec's defaults: a 30s request timeout, a 10 MiB message size cap, and the "api/*"
// prefix-stripping rule.
func DefaultConfig() Config {
	return Config{
		ExactMappings:  map[string]string{},
		PrefixMappings: []PrefixMapping{{Prefix: "api/", Target: ""}},
		Timeout:        30 * time.Second,
		MaxMessageSize: 10 * 1024 * 1024,
	}
}

// validate detects ambiguous prefix configurations at load time, per spec §4.3: two prefix mappings can only race
// for the same external topic if they share the identical prefix string (a topic's longest matching prefix is
// otherwise always unique), so a duplicate Prefix is the configuration error the spec requires implementations to
// refuse.
func (c Config) validate() error {
	seen := make(map[string]struct{}, len(c.PrefixMappings))
	for _, p := range c.PrefixMappings {
		if p.Prefix == "" {
			return fmt.Errorf("router: prefix mapping must not be empty")
		}
		if _, ok := seen[p.Prefix]; ok {
			return fmt.Errorf("router: ambiguous configuration: prefix %q is mapped more than once", p.Prefix)
		}
		seen[p.Prefix] = struct{}{}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("router: timeout must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("router: max_message_size must be positive")
	}
	return nil
}

// resolve computes the internal topic for an external one: exact match wins outright; otherwise the longest
// matching prefix mapping applies. ok is false if nothing matches.
func (c Config) resolve(external string) (internal string, ok bool) {
	if internal, exact := c.ExactMappings[external]; exact {
		return internal, true
	}

	bestLen := -1
	for _, p := range c.PrefixMappings {
		if strings.HasPrefix(external, p.Prefix) && len(p.Prefix) > bestLen {
			bestLen = len(p.Prefix)
			internal = p.Target + external[len(p.Prefix):]
			ok = true
		}
	}
	return internal, ok
}
