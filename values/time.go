package values

import (
	"fmt"
	"strings"
	"time"
)

const nanosPerSecond = 1_000_000_000

// HighPrecisionTime is a nanosecond-accurate instant stored as whole seconds
// since the Unix epoch plus a nanosecond offset. The offset is always
// normalized into [0, 1e9): constructors carry overflow and underflow into
// the seconds component, so equality and ordering are structural on the
// normalized pair.
type HighPrecisionTime struct {
	secs  int64
	nanos uint32
}

// TimeFromParts builds a normalized instant from seconds and a nanosecond
// offset of either sign. An offset outside [0, 1e9) rolls into the seconds.
func TimeFromParts(secs int64, nanos int64) HighPrecisionTime {
	secs += nanos / nanosPerSecond
	nanos %= nanosPerSecond
	if nanos < 0 {
		secs--
		nanos += nanosPerSecond
	}
	return HighPrecisionTime{secs: secs, nanos: uint32(nanos)}
}

// TimeFromStd converts a time.Time, truncating nothing: the full nanosecond
// component is preserved.
func TimeFromStd(t time.Time) HighPrecisionTime {
	return TimeFromParts(t.Unix(), int64(t.Nanosecond()))
}

// Unix returns the whole seconds since the epoch.
func (t HighPrecisionTime) Unix() int64 { return t.secs }

// Nanos returns the normalized nanosecond offset in [0, 1e9).
func (t HighPrecisionTime) Nanos() uint32 { return t.nanos }

// ToStd converts to a time.Time in UTC.
func (t HighPrecisionTime) ToStd() time.Time {
	return time.Unix(t.secs, int64(t.nanos)).UTC()
}

// AddNanos returns the instant shifted by n nanoseconds, renormalized.
func (t HighPrecisionTime) AddNanos(n int64) HighPrecisionTime {
	return TimeFromParts(t.secs, int64(t.nanos)+n)
}

// AddMicros returns the instant shifted by n microseconds, renormalized.
func (t HighPrecisionTime) AddMicros(n int64) HighPrecisionTime {
	secs := t.secs + n/1_000_000
	rem := (n % 1_000_000) * 1_000
	return TimeFromParts(secs, int64(t.nanos)+rem)
}

// Compare orders two instants: seconds first, nanosecond offset second.
// It returns -1, 0, or +1.
func (t HighPrecisionTime) Compare(other HighPrecisionTime) int {
	switch {
	case t.secs < other.secs:
		return -1
	case t.secs > other.secs:
		return 1
	case t.nanos < other.nanos:
		return -1
	case t.nanos > other.nanos:
		return 1
	default:
		return 0
	}
}

// Before reports whether t precedes other.
func (t HighPrecisionTime) Before(other HighPrecisionTime) bool { return t.Compare(other) < 0 }

// After reports whether t follows other.
func (t HighPrecisionTime) After(other HighPrecisionTime) bool { return t.Compare(other) > 0 }

// Equal reports structural equality on the normalized pair.
func (t HighPrecisionTime) Equal(other HighPrecisionTime) bool { return t.Compare(other) == 0 }

// Format renders the instant as an ISO-8601 UTC date-time with exactly nine
// fractional digits and a Z suffix. Format and ParseHighPrecisionTime are
// mutual inverses at full precision.
func (t HighPrecisionTime) Format() string {
	base := time.Unix(t.secs, 0).UTC().Format("2006-01-02T15:04:05")
	return fmt.Sprintf("%s.%09dZ", base, t.nanos)
}

// String implements fmt.Stringer with the wire format.
func (t HighPrecisionTime) String() string { return t.Format() }

// ParseHighPrecisionTime parses an ISO-8601 UTC date-time with a Z suffix
// and zero, three, six, or nine fractional digits. Shorter fractions are
// zero-extended to nanoseconds.
func ParseHighPrecisionTime(s string) (HighPrecisionTime, error) {
	if !strings.HasSuffix(s, "Z") {
		return HighPrecisionTime{}, fmt.Errorf("timestamp %q missing Z suffix", s)
	}
	body := strings.TrimSuffix(s, "Z")

	frac := ""
	if dot := strings.IndexByte(body, '.'); dot >= 0 {
		frac = body[dot+1:]
		body = body[:dot]
	}

	switch len(frac) {
	case 0, 3, 6, 9:
	default:
		return HighPrecisionTime{}, fmt.Errorf("timestamp %q has %d fractional digits, want 0, 3, 6, or 9", s, len(frac))
	}
	var nanos int64
	if frac != "" {
		for _, r := range frac {
			if r < '0' || r > '9' {
				return HighPrecisionTime{}, fmt.Errorf("timestamp %q has non-digit fraction", s)
			}
			nanos = nanos*10 + int64(r-'0')
		}
		for i := len(frac); i < 9; i++ {
			nanos *= 10
		}
	}

	base, err := time.Parse("2006-01-02T15:04:05", body)
	if err != nil {
		return HighPrecisionTime{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return TimeFromParts(base.Unix(), nanos), nil
}
