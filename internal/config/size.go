package config

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidSize is returned when a size string cannot be parsed.
var ErrInvalidSize = errors.New("config: invalid size")

// sizeRegexp matches an integer number of bytes with an optional
// k/m/g/p multiplier and an optional trailing "b", case-insensitive.
var sizeRegexp = regexp.MustCompile(`^([0-9]+)([kmgp])?b?$`)

var sizeExponents = map[string]uint{
	"k": 1,
	"m": 2,
	"g": 3,
	"p": 4,
}

// ParseSize parses memory unit values from strings such as "1024",
// "99kb", "1m" or "6g". The multiplier is a power of 1024. Values that
// do not match the expected shape or overflow an int64 yield an error.
func ParseSize(s string) (int64, error) {
	groups := sizeRegexp.FindStringSubmatch(strings.ToLower(s))
	if groups == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	num, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	mult := int64(1) << (10 * sizeExponents[groups[2]])

	if num > math.MaxInt64/mult {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	return num * mult, nil
}
