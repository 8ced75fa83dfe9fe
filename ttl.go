package fscache

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type ttlKind uint8

const (
	ttlDefault ttlKind = iota
	ttlDuration
	ttlSeconds
)

// TTL describes how long an entry lives. The zero TTL uses the store's
// default. Zero and negative lifetimes are valid and produce entries that are
// already expired.
type TTL struct {
	kind    ttlKind
	dur     time.Duration
	seconds int64
}

// DefaultTTL returns a TTL that resolves to the store's default lifetime.
func DefaultTTL() TTL {
	return TTL{}
}

// TTLDuration returns a TTL of d from the time of the write.
func TTLDuration(d time.Duration) TTL {
	return TTL{kind: ttlDuration, dur: d}
}

// TTLSeconds returns a TTL of n seconds from the time of the write.
func TTLSeconds(n int64) TTL {
	return TTL{kind: ttlSeconds, seconds: n}
}

// IsDefault reports whether the TTL defers to the store's default.
func (t TTL) IsDefault() bool {
	return t.kind == ttlDefault
}

// Resolve converts the TTL into an absolute expiration in Unix seconds.
// Results that would overflow saturate at the int64 bounds, so
// TTLSeconds(math.MaxInt64) never expires.
func (t TTL) Resolve(now time.Time, defaultSeconds int64) int64 {
	switch t.kind {
	case ttlDuration:
		return now.Add(t.dur).Unix()
	case ttlSeconds:
		return addSeconds(now.Unix(), t.seconds)
	default:
		return addSeconds(now.Unix(), defaultSeconds)
	}
}

// addSeconds returns base+n clamped to the int64 range.
func addSeconds(base, n int64) int64 {
	switch {
	case n > 0 && base > math.MaxInt64-n:
		return math.MaxInt64
	case n < 0 && base < math.MinInt64-n:
		return math.MinInt64
	}
	return base + n
}

func (t TTL) String() string {
	switch t.kind {
	case ttlDuration:
		return t.dur.String()
	case ttlSeconds:
		return strconv.FormatInt(t.seconds, 10) + "s"
	default:
		return "default"
	}
}

// ParseTTL parses integer seconds ("3600", "-1") or a Go duration ("1h30m").
// The empty string and "default" yield DefaultTTL.
func ParseTTL(s string) (TTL, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "default") {
		return DefaultTTL(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TTLSeconds(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return TTL{}, fmt.Errorf("invalid TTL %q: expected seconds or a duration such as 1h30m", s)
	}
	return TTLDuration(d), nil
}

// ParseSeconds parses integer seconds or a Go duration into whole seconds,
// the form Config.DefaultTTL takes. The empty string and "default" yield 0.
func ParseSeconds(s string) (int64, error) {
	ttl, err := ParseTTL(s)
	if err != nil {
		return 0, err
	}
	switch ttl.kind {
	case ttlDuration:
		return int64(ttl.dur / time.Second), nil
	case ttlSeconds:
		return ttl.seconds, nil
	default:
		return 0, nil
	}
}
