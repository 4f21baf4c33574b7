// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseString(t *testing.T) {
	t.Setenv("TEST_STR_SET", "value")
	t.Setenv("TEST_STR_EMPTY", "")

	require.Equal(t, "value", ParseString("TEST_STR_SET", "default"))
	require.Equal(t, "default", ParseString("TEST_STR_EMPTY", "default"))
	require.Equal(t, "default", ParseString("TEST_STR_UNSET", "default"))
}

func TestParseInt(t *testing.T) {
	t.Setenv("TEST_INT_OK", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_INT_EMPTY", "")

	require.Equal(t, 42, ParseInt("TEST_INT_OK", 7))
	require.Equal(t, 7, ParseInt("TEST_INT_BAD", 7))
	require.Equal(t, 7, ParseInt("TEST_INT_EMPTY", 7))
	require.Equal(t, 7, ParseInt("TEST_INT_UNSET", 7))
}

func TestParseInt64(t *testing.T) {
	t.Setenv("TEST_I64_OK", "9000000000")
	t.Setenv("TEST_I64_BAD", "x")

	require.Equal(t, int64(9000000000), ParseInt64("TEST_I64_OK", 1))
	require.Equal(t, int64(1), ParseInt64("TEST_I64_BAD", 1))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("TEST_DUR_OK", "90s")
	t.Setenv("TEST_DUR_BAD", "90 lightyears")

	require.Equal(t, 90*time.Second, ParseDuration("TEST_DUR_OK", time.Minute))
	require.Equal(t, time.Minute, ParseDuration("TEST_DUR_BAD", time.Minute))
	require.Equal(t, time.Minute, ParseDuration("TEST_DUR_UNSET", time.Minute))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			require.Equal(t, tt.want, ParseBool("TEST_BOOL", tt.def))
		})
	}
	require.True(t, ParseBool("TEST_BOOL_UNSET", true))
}

func TestParseFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT_OK", "0.25")
	t.Setenv("TEST_FLOAT_BAD", "quarter")

	require.InDelta(t, 0.25, ParseFloat("TEST_FLOAT_OK", 0.5), 1e-9)
	require.InDelta(t, 0.5, ParseFloat("TEST_FLOAT_BAD", 0.5), 1e-9)
}
