package metadata

import (
	"errors"
	"fmt"
)

// ErrZeroDenominator is returned for a rational component with a zero denominator.
var ErrZeroDenominator = errors.New("metadata: rational with zero denominator")

// Rational is one EXIF RATIONAL component.
type Rational struct {
	Num int64
	Den int64
}

// Float converts the rational to a float64.
func (r Rational) Float() (float64, error) {
	if r.Den == 0 {
		return 0, ErrZeroDenominator
	}
	return float64(r.Num) / float64(r.Den), nil
}

// DecimalDegrees converts a (degrees, minutes, seconds) triplet to decimal degrees.
func DecimalDegrees(degrees, minutes, seconds Rational) (float64, error) {
	d, err := degrees.Float()
	if err != nil {
		return 0, err
	}
	m, err := minutes.Float()
	if err != nil {
		return 0, err
	}
	s, err := seconds.Float()
	if err != nil {
		return 0, err
	}
	return d + m/60.0 + s/3600.0, nil
}

// FormatLocation renders a coordinate pair as "lat, lon" with six decimals.
func FormatLocation(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}
