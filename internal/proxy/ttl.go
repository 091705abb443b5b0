package proxy

import (
	"log/slog"
	"strconv"
	"strings"
)

// DefaultTTLSeconds is the s-maxage applied when no valid TTL is configured.
const DefaultTTLSeconds = 600

// ResolveTTL parses a configured TTL in seconds. A missing, non-numeric, zero
// or negative value resolves to DefaultTTLSeconds with a single warning that
// names the rejected value.
func ResolveTTL(raw string, logger *slog.Logger) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err == nil && n > 0 {
		return n
	}
	logger.Warn("invalid cache TTL, using default",
		"value", raw,
		"default_seconds", DefaultTTLSeconds,
	)
	return DefaultTTLSeconds
}
