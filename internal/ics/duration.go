package ics

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// parseDuration parses an RFC 5545 DURATION value such as "PT1H30M",
// "-PT15M", "P1D" or "P2W".
func parseDuration(v string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return 0, errors.New("empty duration")
	}

	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, errors.New("duration must start with P: " + v)
	}
	s = s[1:]

	var (
		total  time.Duration
		inTime bool
		num    strings.Builder
	)
	for _, r := range s {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num.WriteRune(r)
		default:
			if num.Len() == 0 {
				return 0, errors.New("malformed duration: " + v)
			}
			n, err := strconv.Atoi(num.String())
			if err != nil {
				return 0, err
			}
			num.Reset()

			unit, err := durationUnit(r, inTime)
			if err != nil {
				return 0, errors.New("malformed duration: " + v)
			}
			total += time.Duration(n) * unit
		}
	}
	if num.Len() > 0 {
		return 0, errors.New("trailing number in duration: " + v)
	}
	return sign * total, nil
}

func durationUnit(r rune, inTime bool) (time.Duration, error) {
	switch {
	case r == 'W' && !inTime:
		return 7 * 24 * time.Hour, nil
	case r == 'D' && !inTime:
		return 24 * time.Hour, nil
	case r == 'H' && inTime:
		return time.Hour, nil
	case r == 'M' && inTime:
		return time.Minute, nil
	case r == 'S' && inTime:
		return time.Second, nil
	default:
		return 0, errors.New("unknown unit")
	}
}

// formatDuration renders d as an RFC 5545 DURATION value.
func formatDuration(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')
	if days := d / (24 * time.Hour); days > 0 {
		b.WriteString(strconv.FormatInt(int64(days), 10))
		b.WriteByte('D')
		d -= days * 24 * time.Hour
	}
	if d == 0 {
		if b.Len() <= 2 {
			b.WriteString("T0S")
		}
		return b.String()
	}
	b.WriteByte('T')
	if h := d / time.Hour; h > 0 {
		b.WriteString(strconv.FormatInt(int64(h), 10))
		b.WriteByte('H')
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		b.WriteString(strconv.FormatInt(int64(m), 10))
		b.WriteByte('M')
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 {
		b.WriteString(strconv.FormatInt(int64(s), 10))
		b.WriteByte('S')
	}
	return b.String()
}
