package spatial

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrOutsideGrid indicates an easting/northing outside the OS national grid.
var ErrOutsideGrid = errors.New("coordinate outside the national grid")

// ErrGridDigits indicates an unsupported grid reference length.
var ErrGridDigits = errors.New("grid reference digits must be even and between 2 and 10")

// GridOptions controls OS grid reference formatting.
type GridOptions struct {
	// Digits is the total number of numeric digits (2..10, even).
	Digits int
	// Spacing separates the letters, easting, and northing with spaces.
	Spacing bool
}

// GridReference encodes a British National Grid easting/northing (EPSG:27700)
// as an OS grid reference such as "TG 51409 13177".
func GridReference(easting, northing float64, opts GridOptions) (string, error) {
	if opts.Digits < 2 || opts.Digits > 10 || opts.Digits%2 != 0 {
		return "", fmt.Errorf("%w: %d", ErrGridDigits, opts.Digits)
	}

	e100k := int(math.Floor(easting / 100000))
	n100k := int(math.Floor(northing / 100000))
	if e100k < 0 || e100k > 6 || n100k < 0 || n100k > 12 {
		return "", fmt.Errorf("%w: %.0f, %.0f", ErrOutsideGrid, easting, northing)
	}

	l1 := (19 - n100k) - (19-n100k)%5 + (e100k+10)/5
	l2 := (19-n100k)*5%25 + e100k%5
	// the grid alphabet omits I
	if l1 > 7 {
		l1++
	}
	if l2 > 7 {
		l2++
	}
	letters := string([]byte{byte('A' + l1), byte('A' + l2)})

	half := opts.Digits / 2
	div := math.Pow10(5 - half)
	e := int(math.Floor(math.Mod(easting, 100000) / div))
	n := int(math.Floor(math.Mod(northing, 100000) / div))

	es := fmt.Sprintf("%0*d", half, e)
	ns := fmt.Sprintf("%0*d", half, n)

	if opts.Spacing {
		return strings.Join([]string{letters, es, ns}, " "), nil
	}
	return letters + es + ns, nil
}
