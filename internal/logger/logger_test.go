package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsSharedInstance(t *testing.T) {
	first, err := New("development")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := New("production")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
