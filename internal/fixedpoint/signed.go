package fixedpoint

import (
	"fmt"
	"strings"
)

// Signed mirrors the ledger's sign-and-magnitude encoding. Zero is always
// normalised to Positive.
type Signed struct {
	Positive  bool
	Magnitude Decimal
}

// NewSigned builds a Signed, normalising negative zero.
func NewSigned(positive bool, magnitude Decimal) Signed {
	if magnitude.IsZero() {
		positive = true
	}
	return Signed{Positive: positive, Magnitude: magnitude}
}

// PositiveOf wraps a magnitude as a non-negative Signed.
func PositiveOf(d Decimal) Signed { return Signed{Positive: true, Magnitude: d} }

func (s Signed) IsZero() bool { return s.Magnitude.IsZero() }

func (s Signed) Neg() Signed { return NewSigned(!s.Positive, s.Magnitude) }

// Add follows the ledger's signed addition: equal signs add magnitudes,
// opposite signs subtract the smaller magnitude from the larger one.
func (s Signed) Add(o Signed) (Signed, error) {
	if s.Positive == o.Positive {
		m, err := s.Magnitude.Add(o.Magnitude)
		if err != nil {
			return Signed{}, err
		}
		return NewSigned(s.Positive, m), nil
	}
	if s.Magnitude.Cmp(o.Magnitude) >= 0 {
		m, err := s.Magnitude.Sub(o.Magnitude)
		if err != nil {
			return Signed{}, err
		}
		return NewSigned(s.Positive, m), nil
	}
	m, err := o.Magnitude.Sub(s.Magnitude)
	if err != nil {
		return Signed{}, err
	}
	return NewSigned(o.Positive, m), nil
}

func (s Signed) Sub(o Signed) (Signed, error) { return s.Add(o.Neg()) }

func (s Signed) Cmp(o Signed) int {
	switch {
	case s.Positive && !o.Positive:
		if s.IsZero() && o.IsZero() {
			return 0
		}
		return 1
	case !s.Positive && o.Positive:
		if s.IsZero() && o.IsZero() {
			return 0
		}
		return -1
	case s.Positive:
		return s.Magnitude.Cmp(o.Magnitude)
	default:
		return o.Magnitude.Cmp(s.Magnitude)
	}
}

func (s Signed) String() string {
	if !s.Positive && !s.IsZero() {
		return "-" + s.Magnitude.String()
	}
	return s.Magnitude.String()
}

func (s Signed) Float64() float64 {
	f := s.Magnitude.Float64()
	if !s.Positive {
		return -f
	}
	return f
}

// MarshalText emits the raw scaled integer with a leading '-' when negative.
func (s Signed) MarshalText() ([]byte, error) {
	if !s.Positive && !s.IsZero() {
		return []byte("-" + s.Magnitude.Text()), nil
	}
	return []byte(s.Magnitude.Text()), nil
}

func (s *Signed) UnmarshalText(text []byte) error {
	str := string(text)
	positive := !strings.HasPrefix(str, "-")
	m, err := Parse(strings.TrimPrefix(str, "-"))
	if err != nil {
		return fmt.Errorf("signed: %w", err)
	}
	*s = NewSigned(positive, m)
	return nil
}
