package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(context.Background(), "carrier-pigeon")
		assert.Error(t, err)
	})

	t.Run("gemini needs a key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		_, err := New(context.Background(), ProviderGemini)
		assert.Error(t, err)
	})

	t.Run("openai client is shared", func(t *testing.T) {
		a, err := New(context.Background(), ProviderOpenAI, WithAPIKey("test-key"), WithBaseURL("http://localhost:1/v1/"))
		assert.NoError(t, err)
		b, err := New(context.Background(), "")
		assert.NoError(t, err)
		assert.Same(t, a, b)
	})
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", DefaultModel(ProviderOpenAI))
	t.Setenv("GEMINI_MODEL", "")
	assert.Equal(t, "gemini-2.0-flash-exp", DefaultModel(ProviderGemini))
}
