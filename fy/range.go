package fy

import (
	"fmt"
	"iter"
	"strings"
)

// Range represents an inclusive span of fiscal years.
type Range struct{ From, To Year }

// NewRange returns the range [from, to], swapping the bounds if needed.
func NewRange(from, to Year) Range {
	if to.Valid() && from.Valid() && to.Before(from) {
		from, to = to, from
	}
	return Range{From: from, To: to}
}

// ParseRange parses a span such as "2019-2022", "FY2021" or "2020-". An
// omitted bound leaves that side open; the empty string is the open range.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, nil
	}
	before, after, found := strings.Cut(s, "-")
	if !found {
		y, err := Parse(s)
		if err != nil {
			return Range{}, err
		}
		return Range{From: y, To: y}, nil
	}
	var r Range
	if strings.TrimSpace(before) != "" {
		from, err := Parse(before)
		if err != nil {
			return Range{}, err
		}
		r.From = from
	}
	if strings.TrimSpace(after) != "" {
		to, err := Parse(after)
		if err != nil {
			return Range{}, err
		}
		r.To = to
	}
	return NewRange(r.From, r.To), nil
}

// Contains reports whether y falls inside the range (boundaries included).
// An invalid bound leaves that side open.
func (r Range) Contains(y Year) bool {
	if r.From.Valid() && y.Before(r.From) {
		return false
	}
	if r.To.Valid() && y.After(r.To) {
		return false
	}
	return true
}

// Years iterates the range in ascending order. Both bounds must be valid.
func (r Range) Years() iter.Seq[Year] {
	return func(yield func(Year) bool) {
		if !r.From.Valid() || !r.To.Valid() {
			return
		}
		for y := r.From; !y.After(r.To); y = y.Next() {
			if !yield(y) {
				return
			}
		}
	}
}

// Identifier computes a short unique identifier for the range.
func (r Range) Identifier() string {
	if r.From == r.To {
		return r.From.String()
	}
	return fmt.Sprintf("%s_%s", r.From, r.To)
}

func (r Range) String() string {
	if r.From == r.To {
		return r.From.String()
	}
	return fmt.Sprintf("%s-%s", r.From, r.To)
}
