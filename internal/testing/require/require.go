// Package require thinly wraps testify/require so that every sircc test
// imports one internal package instead of reaching into the third-party
// module directly. Contains alone wraps testify/assert, so a failed
// Contains marks the test failed without stopping it. It adds nothing testify doesn't already provide; it
// exists so call sites read `require.Equal(t, ...)` without a direct
// stretchr/testify import scattered across every _test.go file.
package require

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func NoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

func Error(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
}

func EqualError(t *testing.T, err error, msg string) {
	t.Helper()
	require.EqualError(t, err, msg)
}

func Equal(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, expected, actual, msgAndArgs...)
}

func True(t *testing.T, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.True(t, value, msgAndArgs...)
}

func False(t *testing.T, value bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.False(t, value, msgAndArgs...)
}

func Nil(t *testing.T, object interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	require.Nil(t, object, msgAndArgs...)
}

func NotNil(t *testing.T, object interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, object, msgAndArgs...)
}

func Len(t *testing.T, object interface{}, length int, msgAndArgs ...interface{}) {
	t.Helper()
	require.Len(t, object, length, msgAndArgs...)
}

func Contains(t *testing.T, s, contains interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Contains(t, s, contains, msgAndArgs...)
}
