package session

import (
	"testing"
	"time"
)

func TestSessionValid(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		s    Session
		want bool
	}{
		{"active and unexpired", Session{Status: StatusActive, ExpiresAt: now.Add(time.Hour)}, true},
		{"active but expired", Session{Status: StatusActive, ExpiresAt: now.Add(-time.Hour)}, false},
		{"revoked and unexpired", Session{Status: StatusRevoked, ExpiresAt: now.Add(time.Hour)}, false},
	}
	for _, c := range cases {
		if got := c.s.Valid(now); got != c.want {
			t.Errorf("%s: Valid() = %v, want %v", c.name, got, c.want)
		}
	}
}
