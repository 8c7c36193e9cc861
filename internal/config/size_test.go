package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ParseSize(t *testing.T) {
	assert := assert.New(t)

	suite := []struct {
		input string
		want  int64
	}{
		{"1", 1},
		{"1024", 1024},
		{"1000000000", 1_000_000_000},

		{"1k", 1024},
		{"99k", 99 * 1024},
		{"99kb", 99 * 1024},
		{"99K", 99 * 1024},
		{"99KB", 99 * 1024},

		{"1m", 1024 * 1024},
		{"10m", 10 * 1024 * 1024},
		{"101m", 101 * 1024 * 1024},
		{"1024m", 1024 * 1024 * 1024},

		{"6g", 6 * 1024 * 1024 * 1024},
		{"60g", 60 * 1024 * 1024 * 1024},

		{"1p", 1024 * 1024 * 1024 * 1024},
	}

	for _, tCase := range suite {
		got, err := ParseSize(tCase.input)
		assert.NoError(err, tCase.input)
		assert.Equal(tCase.want, got, tCase.input)
	}
}

func Test_ParseSize_Invalid(t *testing.T) {
	assert := assert.New(t)

	suite := []string{
		"",
		"k",
		"kb",
		"foo",
		"not1024m",
		"-12g",
		"12x",
		"7y",
		"1024x1024",
		"1024mi",
		"10000000000000000000000000000",

		// Fits in an int64 before the multiplier, overflows after.
		"9000000000000000000k",
	}

	for _, input := range suite {
		_, err := ParseSize(input)
		assert.ErrorIs(err, ErrInvalidSize, input)
	}
}
