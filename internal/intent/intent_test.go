// ABOUTME: Tests for the rule-based keyword classifier.
// ABOUTME: Table-driven over intents and entity extraction.

package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()
	ctx := context.Background()

	tests := []struct {
		text       string
		wantIntent string
		wantEnt    map[string]string
	}{
		{"What time is it?", "time.query", nil},
		{"what day is it today", "date.query", nil},
		{"Hello!", "greeting", nil},
		{"thanks a lot", "thanks", nil},
		{"ok goodbye", "farewell", nil},
		{"remember that my favorite color is blue", "note.save",
			map[string]string{"key": "favorite color", "value": "blue"}},
		{"what is my favorite color?", "note.recall",
			map[string]string{"key": "favorite color"}},
		{"forget my favorite color", "note.delete",
			map[string]string{"key": "favorite color"}},
		{"please take a note", "note.save", nil},
		{"compile the kernel", Unknown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := c.Classify(ctx, tt.text, Hints{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantIntent, got.Intent)
			for k, v := range tt.wantEnt {
				assert.Equal(t, v, got.Entities[k], "entity %s", k)
			}
			if tt.wantIntent == Unknown {
				assert.Zero(t, got.Confidence)
			} else {
				assert.Greater(t, got.Confidence, 0.0)
			}
		})
	}
}
