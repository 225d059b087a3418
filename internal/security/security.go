// Package security implements the gateway's security filter (spec §4.7, C11), the first stage of every adapter's
// pipeline. It blocks denied remote IPs, enforces a maximum request size, sanitizes inbound strings, and rejects
// payloads matching a configured set of attack patterns. Sanitization is grounded on the teacher's bluemonday usage
// in internal/onboarding/documents.go; every other check is new, reimplemented for the request-pipeline shape this
// spec needs.
package security

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// Config tunes the filter.
type Config struct {
	MaxRequestSize int64
	AllowedIPs     []string // CIDR or exact IP; empty means "allow list not enforced"
	DeniedIPs      []string // CIDR or exact IP; checked before AllowedIPs
}

// DefaultConfig returns the spec's default 10 MiB request size cap and no IP restrictions.
func DefaultConfig() Config {
	return Config{MaxRequestSize: 10 * 1024 * 1024}
}

// reason is an internal-only rejection code. It is never surfaced to the client: spec §4.7 requires that rejections
// not reveal which rule fired.
type reason string

const (
	reasonIPDenied      reason = "ip_denied"
	reasonIPNotAllowed  reason = "ip_not_allowlisted"
	reasonSizeExceeded  reason = "size_exceeded"
	reasonAttackPattern reason = "attack_pattern_matched"
)

// Filter is the gateway's security filter. It is safe for concurrent use; all state is read-only after New.
type Filter struct {
	cfg      Config
	policy   *bluemonday.Policy
	allow    ipMatcher
	deny     ipMatcher
	patterns []attackPattern
	log      zerolog.Logger
}

// New builds a Filter from cfg. Malformed entries in AllowedIPs/DeniedIPs are a configuration error.
func New(cfg Config, log zerolog.Logger) (*Filter, error) {
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = DefaultConfig().MaxRequestSize
	}

	allow, err := newIPMatcher(cfg.AllowedIPs)
	if err != nil {
		return nil, fmt.Errorf("security: allowed_ips: %w", err)
	}
	deny, err := newIPMatcher(cfg.DeniedIPs)
	if err != nil {
		return nil, fmt.Errorf("security: denied_ips: %w", err)
	}

	return &Filter{
		cfg:      cfg,
		policy:   bluemonday.StrictPolicy(),
		allow:    allow,
		deny:     deny,
		patterns: defaultAttackPatterns(),
		log:      log.With().Str("component", "security").Logger(),
	}, nil
}

// reject builds the single user-facing SecurityError, logging the real reason at the caller's discretion.
func (f *Filter) reject(r reason, ip string) error {
	f.log.Warn().Str("reason", string(r)).Str("remote_ip", ip).Msg("security filter rejected request")
	return ferror.New(ferror.KindSecurity, "request rejected by security policy")
}

// CheckIP enforces the deny list (checked first) and, if configured, the allow list.
func (f *Filter) CheckIP(remoteIP string) error {
	if f.deny.matches(remoteIP) {
		return f.reject(reasonIPDenied, remoteIP)
	}
	if !f.allow.empty() && !f.allow.matches(remoteIP) {
		return f.reject(reasonIPNotAllowed, remoteIP)
	}
	return nil
}

// CheckSize enforces MaxRequestSize.
func (f *Filter) CheckSize(size int64) error {
	if size > f.cfg.MaxRequestSize {
		return f.reject(reasonSizeExceeded, "")
	}
	return nil
}

// Screen runs the full pipeline described in spec §4.7 against one inbound request: IP check, size check, attack
// pattern detection, then sanitization. It returns the sanitized payload on success.
func (f *Filter) Screen(remoteIP string, size int64, payload any) (any, error) {
	if err := f.CheckIP(remoteIP); err != nil {
		return nil, err
	}
	if err := f.CheckSize(size); err != nil {
		return nil, err
	}
	if err := f.DetectAttackPatterns(payload); err != nil {
		return nil, err
	}
	return f.Sanitize(payload), nil
}
