package security

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

func newTestFilter(t *testing.T, cfg Config) *Filter {
	t.Helper()
	f, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestCheckIPDeniesListedAddress(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{DeniedIPs: []string{"10.0.0.5"}})

	if err := f.CheckIP("10.0.0.5"); !ferror.Is(err, ferror.KindSecurity) {
		t.Errorf("CheckIP() error = %v, want KindSecurity", err)
	}
	if err := f.CheckIP("10.0.0.6"); err != nil {
		t.Errorf("CheckIP() error = %v, want nil for a non-denied address", err)
	}
}

func TestCheckIPDeniesByCIDR(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{DeniedIPs: []string{"192.168.1.0/24"}})

	if err := f.CheckIP("192.168.1.42"); err == nil {
		t.Error("CheckIP() error = nil, want error for address inside denied CIDR")
	}
	if err := f.CheckIP("192.168.2.1"); err != nil {
		t.Errorf("CheckIP() error = %v, want nil for address outside denied CIDR", err)
	}
}

func TestCheckIPEnforcesAllowList(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{AllowedIPs: []string{"10.0.0.0/8"}})

	if err := f.CheckIP("10.1.2.3"); err != nil {
		t.Errorf("CheckIP() error = %v, want nil for allowlisted address", err)
	}
	if err := f.CheckIP("8.8.8.8"); err == nil {
		t.Error("CheckIP() error = nil, want error for address outside the allow list")
	}
}

func TestCheckIPNoListsAllowsEverything(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, DefaultConfig())

	if err := f.CheckIP("203.0.113.1"); err != nil {
		t.Errorf("CheckIP() error = %v, want nil when no lists are configured", err)
	}
}

func TestDenyListTakesPrecedenceOverAllowList(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{AllowedIPs: []string{"10.0.0.0/8"}, DeniedIPs: []string{"10.0.0.5"}})

	if err := f.CheckIP("10.0.0.5"); err == nil {
		t.Error("CheckIP() error = nil, want deny list to win over an otherwise-allowlisted address")
	}
}

func TestNewRejectsMalformedIPEntry(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{AllowedIPs: []string{"not-an-ip"}}, zerolog.Nop()); err == nil {
		t.Error("New() error = nil, want error for a malformed allowed_ips entry")
	}
}

func TestCheckSize(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{MaxRequestSize: 100})

	if err := f.CheckSize(100); err != nil {
		t.Errorf("CheckSize(100) error = %v, want nil at exactly the limit", err)
	}
	if err := f.CheckSize(101); !ferror.Is(err, ferror.KindSecurity) {
		t.Errorf("CheckSize(101) error = %v, want KindSecurity one byte over the limit", err)
	}
}

func TestDefaultConfigMaxRequestSize(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.MaxRequestSize != 10*1024*1024 {
		t.Errorf("DefaultConfig().MaxRequestSize = %d, want 10 MiB", cfg.MaxRequestSize)
	}
}

func TestScreenRunsFullPipeline(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, DefaultConfig())

	out, err := f.Screen("127.0.0.1", 64, map[string]any{"text": "<b>hi</b>"})
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("Screen() output type = %T, want map[string]any", out)
	}
	if m["text"] != "hi" {
		t.Errorf("Screen() sanitized text = %q, want %q", m["text"], "hi")
	}
}

func TestScreenRejectsOversizedRequestBeforeSanitizing(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{MaxRequestSize: 10})

	if _, err := f.Screen("127.0.0.1", 1000, map[string]any{"text": "hi"}); !ferror.Is(err, ferror.KindSecurity) {
		t.Errorf("Screen() error = %v, want KindSecurity for oversized request", err)
	}
}

func TestScreenRejectsDeniedIPBeforeAnythingElse(t *testing.T) {
	t.Parallel()
	f := newTestFilter(t, Config{MaxRequestSize: 10 * 1024 * 1024, DeniedIPs: []string{"10.0.0.5"}})

	if _, err := f.Screen("10.0.0.5", 10, map[string]any{"text": "hi"}); err == nil {
		t.Error("Screen() error = nil, want error for denied IP")
	}
}
