// ABOUTME: Tests for conversation context state and deep copying.
// ABOUTME: Verifies clones never share mutable state with the live context.

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendTurn_AdvancesDepthAndActivity(t *testing.T) {
	c := New("alice", "sess-1")
	before := c.LastActivity

	time.Sleep(5 * time.Millisecond)
	c.AppendTurn(Turn{TurnID: "t1", UserInput: "hello", Success: true})

	assert.Equal(t, 1, c.Depth)
	assert.Len(t, c.History, 1)
	assert.True(t, c.LastActivity.After(before))
	require.NotNil(t, c.LastTurn())
	assert.Equal(t, "t1", c.LastTurn().TurnID)
}

func TestRecentHistory_ReturnsCopy(t *testing.T) {
	c := New("alice", "sess-1")
	for i := 0; i < 5; i++ {
		c.AppendTurn(Turn{TurnID: string(rune('a' + i))})
	}

	recent := c.RecentHistory(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].TurnID)
	assert.Equal(t, "e", recent[2].TurnID)

	recent[0].TurnID = "mutated"
	assert.Equal(t, "c", c.History[2].TurnID)

	assert.Len(t, c.RecentHistory(0), 5)
	assert.Len(t, c.RecentHistory(100), 5)
}

func TestClone_DeepCopies(t *testing.T) {
	c := New("alice", "sess-1")
	c.CurrentTopic = "weather"
	c.EntityMemory["city"] = "Lisbon"
	c.UnresolvedQuestions = []string{"which day?"}
	c.PendingActions = []Action{{Intent: "reminder.create", Skill: "notes"}}
	c.AppendTurn(Turn{TurnID: "t1"})

	clone := c.Clone()

	// Mutate the original; the clone must not observe it.
	c.EntityMemory["city"] = "Porto"
	c.UnresolvedQuestions[0] = "changed"
	c.PendingActions[0].Intent = "changed"
	c.AppendTurn(Turn{TurnID: "t2"})

	assert.Equal(t, "Lisbon", clone.EntityMemory["city"])
	assert.Equal(t, "which day?", clone.UnresolvedQuestions[0])
	assert.Equal(t, "reminder.create", clone.PendingActions[0].Intent)
	assert.Len(t, clone.History, 1)
}
