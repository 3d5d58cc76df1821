package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedLines(t *testing.T) {
	lines, err := seedLines(7, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, lines, 7)
	assert.Equal(t, "alice", lines[0].Sender)
	assert.Equal(t, "bob", lines[1].Sender)
	assert.Equal(t, seedTexts[0], lines[5].Text, "texts wrap around")

	lines, err = seedLines(0, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestSeedLinesRejectsNegativeCount(t *testing.T) {
	_, err := seedLines(-1, "alice", "bob")
	assert.Error(t, err)
}
