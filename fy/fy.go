// Package fy provides the fiscal-year value type used throughout the
// budget pipeline: parsing the year tokens found in municipal extracts,
// ordering, ranges, and stable JSON/YAML representations.
package fy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Year represents a fiscal year. The zero value is "no year".
type Year int

// New returns the Year for a four-digit calendar year.
func New(y int) Year { return Year(y) }

// Valid reports whether y holds an actual year.
func (y Year) Valid() bool { return y != 0 }

// Before reports whether y is an earlier fiscal year than x.
func (y Year) Before(x Year) bool { return y < x }

// After reports whether y is a later fiscal year than x.
func (y Year) After(x Year) bool { return y > x }

// Next returns the following fiscal year.
func (y Year) Next() Year { return y + 1 }

// Prev returns the preceding fiscal year.
func (y Year) Prev() Year { return y - 1 }

// Int returns the year as a plain int.
func (y Year) Int() int { return int(y) }

// String formats the year in its standard "FY2024" form.
func (y Year) String() string {
	if !y.Valid() {
		return "FY????"
	}
	return fmt.Sprintf("FY%d", int(y))
}

// Parse parses a fiscal year from the tokens that appear in extracts.
// It is lenient: "2024", "FY2024", "FY 2024", "fy24" and "24" are all
// accepted. Two-digit years are mapped into the 2000s, matching the
// convention of the source systems.
func Parse(str string) (Year, error) {
	s := strings.TrimSpace(str)
	upper := strings.ToUpper(s)
	upper = strings.TrimPrefix(upper, "FY")
	upper = strings.TrimSpace(upper)
	n, err := strconv.Atoi(upper)
	if err != nil {
		return 0, fmt.Errorf("invalid fiscal year %q: %w", str, err)
	}
	switch {
	case n >= 0 && n < 100:
		n += 2000
	case n < 1900 || n > 9999:
		return 0, fmt.Errorf("invalid fiscal year %q: out of range", str)
	}
	return Year(n), nil
}

// MustParse is like Parse but panics on error.
func MustParse(str string) Year {
	y, err := Parse(str)
	if err != nil {
		panic(err.Error())
	}
	return y
}

// MarshalJSON encodes the year as a plain number.
func (y Year) MarshalJSON() ([]byte, error) { return json.Marshal(int(y)) }

// UnmarshalJSON accepts either a number or any string form Parse accepts.
func (y *Year) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*y = Year(normalize(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid fiscal year %s", b)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*y = parsed
	return nil
}

// MarshalYAML encodes the year as a plain number.
func (y Year) MarshalYAML() (interface{}, error) { return int(y), nil }

// UnmarshalYAML accepts either a number or any string form Parse accepts.
func (y *Year) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		*y = Year(normalize(n))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid fiscal year at line %d", value.Line)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*y = parsed
	return nil
}

// normalize applies the two-digit convention to numeric input.
func normalize(n int) int {
	if n > 0 && n < 100 {
		return n + 2000
	}
	return n
}

var _ json.Marshaler = (*Year)(nil)
var _ json.Unmarshaler = (*Year)(nil)
var _ yaml.Unmarshaler = (*Year)(nil)
