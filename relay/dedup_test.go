package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenWindow(t *testing.T) {
	w, err := newSeenWindow(2)
	require.NoError(t, err)

	m1 := MoveMessage{Origin: "a", Seq: 1}
	m2 := MoveMessage{Origin: "a", Seq: 2}
	m3 := MoveMessage{Origin: "b", Seq: 1}

	assert.True(t, w.firstSeen(m1))
	assert.False(t, w.firstSeen(m1))
	assert.True(t, w.firstSeen(m2))
	assert.True(t, w.firstSeen(m3), "same seq from another origin is distinct")

	// 容量为 2，m1 已被淘汰
	assert.True(t, w.firstSeen(m1))
}

func TestSeenWindow_Disabled(t *testing.T) {
	w, err := newSeenWindow(0)
	require.NoError(t, err)

	m := MoveMessage{Origin: "a", Seq: 1}
	assert.True(t, w.firstSeen(m))
	assert.True(t, w.firstSeen(m))
}

func TestSeenWindow_LegacyMessages(t *testing.T) {
	w, err := newSeenWindow(8)
	require.NoError(t, err)

	m := MoveMessage{X: 1, Y: 2}
	assert.True(t, w.firstSeen(m))
	assert.True(t, w.firstSeen(m))
}
