package job

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// WallClock is a wall-clock limit. In YAML/JSON it is written as a Go duration ("12h"),
// a scheduler time string ("1-00:00:00") or a whole number of minutes.
type WallClock time.Duration

func (w WallClock) Duration() time.Duration {
	return time.Duration(w)
}

func (w WallClock) String() string {
	return FormatWallClock(time.Duration(w))
}

func (w WallClock) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

func (w *WallClock) UnmarshalJSON(b []byte) error {
	var minutes int64
	if err := json.Unmarshal(b, &minutes); err == nil {
		d, err := scale(minutes, time.Minute)
		if err != nil {
			return errors.Wrapf(err, "invalid wall clock limit %d minutes", minutes)
		}
		*w = WallClock(d)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Errorf("wall clock limit must be a string or a number of minutes, got %s", string(b))
	}
	d, err := ParseWallClock(s)
	if err != nil {
		return err
	}
	*w = WallClock(d)
	return nil
}

// FormatWallClock formats d as [D-]HH:MM:SS, the form Slurm and PBS accept for time limits.
// Partial seconds round up, so a positive limit never renders as 00:00:00 (no limit).
func FormatWallClock(d time.Duration) string {
	total := int64(d / time.Second)
	if d%time.Second > 0 {
		total++
	}
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if days == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
}

// ParseWallClock accepts a Go duration ("90m") or any of the Slurm time forms:
// "M", "M:S", "H:M:S", "D-H", "D-H:M" and "D-H:M:S".
func ParseWallClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty wall clock limit")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	var days int64
	rest := s
	hasDays := false
	if i := strings.Index(s, "-"); i >= 0 {
		n, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil || n < 0 {
			return 0, errors.Errorf("invalid days in wall clock limit %q", s)
		}
		days, rest, hasDays = n, s[i+1:], true
	}

	parts := strings.Split(rest, ":")
	if len(parts) > 3 {
		return 0, errors.Errorf("invalid wall clock limit %q", s)
	}
	values := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, errors.Errorf("invalid wall clock limit %q", s)
		}
		values[i] = n
	}

	var h, m, sec int64
	switch {
	case hasDays && len(values) == 1:
		h = values[0]
	case hasDays && len(values) == 2:
		h, m = values[0], values[1]
	case len(values) == 1:
		m = values[0]
	case len(values) == 2 && !hasDays:
		m, sec = values[0], values[1]
	default:
		h, m, sec = values[0], values[1], values[2]
	}

	var d time.Duration
	for _, part := range []struct {
		n    int64
		unit time.Duration
	}{{days, 24 * time.Hour}, {h, time.Hour}, {m, time.Minute}, {sec, time.Second}} {
		v, err := scale(part.n, part.unit)
		if err != nil || v > math.MaxInt64-d {
			return 0, errors.Errorf("wall clock limit %q is too large", s)
		}
		d += v
	}
	return d, nil
}

// scale returns n units, refusing values that do not fit in a time.Duration.
func scale(n int64, unit time.Duration) (time.Duration, error) {
	limit := int64(math.MaxInt64 / unit)
	if n > limit || n < -limit {
		return 0, errors.Errorf("%d exceeds the maximum of %d", n, limit)
	}
	return time.Duration(n) * unit, nil
}

// ByteQuantity is an amount of memory in bytes. In YAML/JSON it is written as a size
// string with binary multiples ("4gb", "512MiB") or a number of bytes.
type ByteQuantity int64

func (q ByteQuantity) String() string {
	return FormatMemory(int64(q))
}

func (q ByteQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

func (q *ByteQuantity) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*q = ByteQuantity(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Errorf("memory must be a size string or a number of bytes, got %s", string(b))
	}
	n, err := ParseMemory(s)
	if err != nil {
		return err
	}
	*q = ByteQuantity(n)
	return nil
}

// ParseMemory parses a human readable size with binary multiples, so "4gb" is 4 GiB.
func ParseMemory(s string) (int64, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid memory quantity %q", s)
	}
	return n, nil
}

var memoryUnits = []struct {
	suffix string
	size   int64
}{
	{"tb", units.TiB},
	{"gb", units.GiB},
	{"mb", units.MiB},
	{"kb", units.KiB},
}

// FormatMemory renders n in the largest unit that represents it exactly ("4gb", "1536mb").
// Schedulers read a bare number as megabytes, so anything below a whole kilobyte is
// rounded up to kilobytes.
func FormatMemory(n int64) string {
	for _, u := range memoryUnits {
		if n != 0 && n%u.size == 0 {
			return fmt.Sprintf("%d%s", n/u.size, u.suffix)
		}
	}
	if n <= 0 {
		return fmt.Sprintf("%dkb", n/units.KiB)
	}
	return fmt.Sprintf("%dkb", (n+units.KiB-1)/units.KiB)
}
