// Package segment builds canonical ordered keys from a row's dimension values
package segment

import (
	"strings"

	"adperf/internal/core/kpi"
)

// Key is the ordered tuple of dimension values; nil entries are nulls
type Key []*string

// Of builds the key for v using dims as the tuple order
// the same dims order must be used on both sides of a comparison
func Of(v kpi.Values, dims []string) Key {
	k := make(Key, len(dims))
	for i, d := range dims {
		k[i] = v.Get(d)
	}
	return k
}

// Compare orders keys element by element; null sorts before any value and
// a shorter key sorts before a longer one sharing its prefix
func Compare(a, b Key) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := compareValue(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func compareValue(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(*a, *b)
}

// String is an injective encoding usable as a map key
// null and "" stay distinct
func (k Key) String() string {
	var sb strings.Builder
	for i, v := range k {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		if v == nil {
			sb.WriteByte(0x00)
			continue
		}
		sb.WriteByte(0x01)
		sb.WriteString(strings.ReplaceAll(*v, "\x1f", "\x1f\x1f"))
	}
	return sb.String()
}

// Values expands the key back into a dimension map
func (k Key) Values(dims []string) kpi.Values {
	out := make(kpi.Values, len(dims))
	for i, d := range dims {
		if i < len(k) {
			out[d] = k[i]
		} else {
			out[d] = nil
		}
	}
	return out
}
