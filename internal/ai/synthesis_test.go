package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages(SynthesisRequest{
		Question: "When is the final?",
		Passages: []Passage{
			{Title: "CS101 Syllabus", Page: 2, Text: "Final exam Dec 15 2025"},
			{Title: "CS101 Syllabus", Page: 1, Text: "Homework due Friday"},
		},
		History: []ChatMessage{
			{Role: "system", Content: "ignored"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, systemPrompt, msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.Equal(t, "hello", msgs[2].Content)
	assert.Equal(t, "user", msgs[3].Role)
	assert.Contains(t, msgs[3].Content, "Question: When is the final?")
	assert.Contains(t, msgs[3].Content, "[CS101 Syllabus p.2] Final exam Dec 15 2025\n---\n[CS101 Syllabus p.1] Homework due Friday")
}

func TestUnavailableSynthesizer(t *testing.T) {
	_, err := UnavailableSynthesizer{}.Synthesize(context.Background(), SynthesisRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrSynthesisUnavailable)
}
