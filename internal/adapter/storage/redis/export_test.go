package redis

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// SetClock replaces the store's time source.
func (s *RateLimitStore) SetClock(now func() time.Time) {
	s.now = now
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	p, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("miniredis port: %v", err)
	}
	return p
}
