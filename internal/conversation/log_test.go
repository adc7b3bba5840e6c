package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendKeepsOrderAndIncreasingIDs(t *testing.T) {
	var log Log
	log, first := log.Append(AuthorUser, "Is it serious?", false)
	log, second := log.Append(AuthorAssistant, "Unlikely.", false)

	require.Equal(t, 2, log.Len())
	turns := log.Turns()
	assert.Equal(t, "Is it serious?", turns[0].Text)
	assert.Equal(t, AuthorAssistant, turns[1].Author)
	assert.Less(t, first.ID, second.ID)

	last, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, second, last)
}

func TestAppendDoesNotMutateEarlierValue(t *testing.T) {
	var base Log
	base, _ = base.Append(AuthorUser, "one", false)

	a, _ := base.Append(AuthorAssistant, "two", false)
	b, _ := base.Append(AuthorAssistant, "error", true)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "two", a.Turns()[1].Text)
	assert.Equal(t, "error", b.Turns()[1].Text)
	assert.True(t, b.Turns()[1].IsError)
}

func TestClearContinuesIDSequence(t *testing.T) {
	var log Log
	log, before := log.Append(AuthorUser, "hello", false)
	log = log.Clear()

	assert.Equal(t, 0, log.Len())
	_, ok := log.Last()
	assert.False(t, ok)

	_, after := log.Append(AuthorUser, "again", false)
	assert.Greater(t, after.ID, before.ID)
}

func TestTurnsReturnsCopy(t *testing.T) {
	var log Log
	log, _ = log.Append(AuthorUser, "original", false)

	turns := log.Turns()
	turns[0].Text = "changed"
	assert.Equal(t, "original", log.Turns()[0].Text)
}
