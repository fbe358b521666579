package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreeze(t *testing.T) {
	v, err := parseFreeze("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseFreeze("yes")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, *v)

	v, err = parseFreeze("0")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.False(t, *v)

	_, err = parseFreeze("maybe")
	assert.Error(t, err)
}
