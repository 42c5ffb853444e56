package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_KnownPrompts(t *testing.T) {
	for _, key := range []string{"summarize", "generate", "review", "revise", "enhance"} {
		t.Run(key, func(t *testing.T) {
			prompt, err := Get("agents.json", key)
			require.NoError(t, err)
			assert.NotEmpty(t, prompt)
		})
	}
}

func TestGet_MissingKey(t *testing.T) {
	_, err := Get("agents.json", "no-such-prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-prompt")
}

func TestGet_MissingFile(t *testing.T) {
	_, err := Get("missing.json", "summarize")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	out := Format("Summarize: {{.Text}} ({{.Text}})", map[string]string{"Text": "hello"})
	assert.Equal(t, "Summarize: hello (hello)", out)
}

func TestReviewPromptAsksForScore(t *testing.T) {
	prompt := MustGet("agents.json", "review")
	assert.True(t, strings.Contains(prompt, "0-100"))
}
