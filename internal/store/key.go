package store

import (
	"fmt"
	"strconv"
	"strings"
)

// ComposeKey joins parts into one identifier. Each part is written as
// "<byte length>:<part>", so any part content round-trips through SplitKey
// and distinct part lists never collide.
func ComposeKey(parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(strconv.Itoa(len(p)))
		sb.WriteByte(':')
		sb.WriteString(p)
	}
	return sb.String()
}

// SplitKey reverses ComposeKey.
func SplitKey(key string) ([]string, error) {
	parts := []string{}
	for rest := key; rest != ""; {
		colon := strings.IndexByte(rest, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("split key %q: missing length prefix", key)
		}
		n, err := strconv.Atoi(rest[:colon])
		if err != nil || n < 0 || rest[0] == '+' || (colon > 1 && rest[0] == '0') {
			return nil, fmt.Errorf("split key %q: bad length %q", key, rest[:colon])
		}
		rest = rest[colon+1:]
		if n > len(rest) {
			return nil, fmt.Errorf("split key %q: segment overruns key", key)
		}
		parts = append(parts, rest[:n])
		rest = rest[n:]
	}
	return parts, nil
}
