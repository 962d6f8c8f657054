// Package notation parses and formats musical timeline positions.
//
// Positions use the bar|beat form ("3|1", "2|3.5"): one-based bar and
// beat numbers relative to the arrangement origin, so "1|1" is beat 0.
// Intervals use the bar:beat form ("1:2"): a duration of whole bars
// plus beats.
//
// All conversion is relative to a Meter (time signature). The engine
// itself works exclusively in absolute beats; this package is the only
// place bar arithmetic happens.
package notation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Meter is a time signature. Numerator is beats per bar as counted on
// the timeline; Denominator is the beat unit and only affects display.
type Meter struct {
	Numerator   int
	Denominator int
}

// Common44 is the default meter when configuration supplies none.
var Common44 = Meter{Numerator: 4, Denominator: 4}

// BeatsPerBar returns the number of timeline beats in one bar.
func (m Meter) BeatsPerBar() float64 {
	if m.Numerator <= 0 {
		return 4
	}
	return float64(m.Numerator)
}

func (m Meter) String() string {
	return fmt.Sprintf("%d/%d", m.Numerator, m.Denominator)
}

// ParsePosition converts a bar|beat literal to absolute beats.
//
// The bar part must be a positive integer; the beat part may be
// fractional ("2|1.5"). A bare number without the separator is
// accepted as a raw beat offset, which keeps programmatic callers from
// having to format bars they never think in.
func ParsePosition(s string, m Meter) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty position")
	}

	bar, beat, found := strings.Cut(s, "|")
	if !found {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid position %q: %w", s, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("invalid position %q: negative beats", s)
		}
		return v, nil
	}

	barNum, err := strconv.Atoi(strings.TrimSpace(bar))
	if err != nil {
		return 0, fmt.Errorf("invalid bar in position %q: %w", s, err)
	}
	if barNum < 1 {
		return 0, fmt.Errorf("invalid bar in position %q: bars are one-based", s)
	}

	beatNum, err := strconv.ParseFloat(strings.TrimSpace(beat), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid beat in position %q: %w", s, err)
	}
	if beatNum < 1 {
		return 0, fmt.Errorf("invalid beat in position %q: beats are one-based", s)
	}

	return float64(barNum-1)*m.BeatsPerBar() + (beatNum - 1), nil
}

// ParsePositionList parses a comma-separated list of bar|beat literals.
// Order and duplicates are preserved; callers normalize.
func ParsePositionList(s string, m Meter) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		beats, err := ParsePosition(part, m)
		if err != nil {
			return nil, err
		}
		out = append(out, beats)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no positions in %q", s)
	}
	return out, nil
}

// ParseInterval converts a bar:beat duration literal to beats.
// "1:2" in 4/4 is 6 beats; "0:0.5" is half a beat. A bare number is a
// raw beat count.
func ParseInterval(s string, m Meter) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	bars, beats, found := strings.Cut(s, ":")
	if !found {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", s, err)
		}
		if v <= 0 {
			return 0, fmt.Errorf("invalid interval %q: must be positive", s)
		}
		return v, nil
	}

	barNum, err := strconv.Atoi(strings.TrimSpace(bars))
	if err != nil {
		return 0, fmt.Errorf("invalid bars in interval %q: %w", s, err)
	}
	beatNum, err := strconv.ParseFloat(strings.TrimSpace(beats), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid beats in interval %q: %w", s, err)
	}
	if barNum < 0 || beatNum < 0 {
		return 0, fmt.Errorf("invalid interval %q: negative component", s)
	}

	total := float64(barNum)*m.BeatsPerBar() + beatNum
	if total <= 0 {
		return 0, fmt.Errorf("invalid interval %q: must be positive", s)
	}
	return total, nil
}

// FormatPosition renders absolute beats as a bar|beat literal.
// Fractional beats keep up to three decimal places, trailing zeros
// trimmed.
func FormatPosition(beats float64, m Meter) string {
	bpb := m.BeatsPerBar()
	bar := int(math.Floor(beats/bpb)) + 1
	beat := beats - float64(bar-1)*bpb + 1

	whole := math.Round(beat)
	if math.Abs(beat-whole) < 1e-9 {
		return fmt.Sprintf("%d|%d", bar, int(whole))
	}
	s := strconv.FormatFloat(beat, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return fmt.Sprintf("%d|%s", bar, s)
}

// FormatBeats renders a beat count for messages ("4", "1.5").
func FormatBeats(beats float64) string {
	whole := math.Round(beats)
	if math.Abs(beats-whole) < 1e-9 {
		return strconv.Itoa(int(whole))
	}
	s := strconv.FormatFloat(beats, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
