package irc

import (
	"testing"

	"github.com/lrstanley/girc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMultilineCaps(t *testing.T) {
	assert.Equal(t, multilineCaps{maxBytes: 4096, maxLines: 24}, parseMultilineCaps("max-bytes=4096,max-lines=24"))
	assert.Equal(t, multilineCaps{maxBytes: 512}, parseMultilineCaps("max-bytes=512"))
	assert.Equal(t, multilineCaps{}, parseMultilineCaps("junk,max-lines=x"))
}

func TestCapsFromList(t *testing.T) {
	caps, ok := capsFromList("sasl draft/multiline=max-lines=5")
	require.True(t, ok)
	assert.Equal(t, 5, caps.maxLines)

	caps, ok = capsFromList("draft/multiline")
	assert.True(t, ok)
	assert.Zero(t, caps)

	_, ok = capsFromList("sasl echo-message")
	assert.False(t, ok)
}

func TestPlanBatches(t *testing.T) {
	lines := []string{"one", "two", "three", "four"}

	t.Run("no limits", func(t *testing.T) {
		assert.Equal(t, [][]string{lines}, planBatches(lines, multilineCaps{}))
	})

	t.Run("max lines", func(t *testing.T) {
		assert.Equal(t, [][]string{{"one", "two", "three"}, {"four"}},
			planBatches(lines, multilineCaps{maxLines: 3}))
	})

	t.Run("max bytes", func(t *testing.T) {
		// "one\ntwo" is 7 bytes; adding "\nthree" would exceed 10.
		assert.Equal(t, [][]string{{"one", "two"}, {"three", "four"}},
			planBatches(lines, multilineCaps{maxBytes: 10}))
	})

	t.Run("oversized first line truncated", func(t *testing.T) {
		assert.Equal(t, [][]string{{"abcd"}, {"ok"}},
			planBatches([]string{"abcdefgh", "ok"}, multilineCaps{maxBytes: 4}))
	})
}

func TestBatchEvents(t *testing.T) {
	events := batchEvents("b1", "#deals", []string{"hi", "abcdef"}, 4)
	require.Len(t, events, 5)

	assert.Equal(t, cmdBATCH, events[0].Command)
	assert.Equal(t, []string{"+b1", capMultiline, "#deals"}, events[0].Params)

	assert.Equal(t, []string{"#deals", "hi"}, events[1].Params)
	assert.NotContains(t, events[1].Tags, tagMultilineConcat)

	assert.Equal(t, []string{"#deals", "abcd"}, events[2].Params)
	assert.Contains(t, events[2].Tags, tagMultilineConcat)
	assert.Equal(t, []string{"#deals", "ef"}, events[3].Params)
	assert.NotContains(t, events[3].Tags, tagMultilineConcat)

	for _, ev := range events[1:4] {
		assert.Equal(t, girc.PRIVMSG, ev.Command)
		assert.Equal(t, "b1", ev.Tags[tagBatch])
	}
	assert.Equal(t, []string{"-b1"}, events[4].Params)
}

func TestMultilineFailCode(t *testing.T) {
	code, ok := multilineFailCode(girc.Event{Command: "FAIL", Params: []string{"BATCH", "MULTILINE_MAX_LINES", "too many"}})
	assert.True(t, ok)
	assert.Equal(t, "MULTILINE_MAX_LINES", code)

	_, ok = multilineFailCode(girc.Event{Command: "FAIL", Params: []string{"CHATHISTORY", "INVALID_TARGET"}})
	assert.False(t, ok)

	_, ok = multilineFailCode(girc.Event{Command: "NOTE", Params: []string{"BATCH", "MULTILINE_INVALID"}})
	assert.False(t, ok)
}

func TestNewBatchID(t *testing.T) {
	a, b := newBatchID(), newBatchID()
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
