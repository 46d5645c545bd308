package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

const chatgptThread = `<main>
<div data-message-author-role="user"><div class="markdown">question</div></div>
<div data-message-author-role="assistant"><div class="markdown prose"><p>first answer</p></div></div>
<div data-message-author-role="user"><div class="markdown">follow up</div></div>
<div data-message-author-role="assistant"><div class="markdown prose"><p>second <em>answer</em></p></div></div>
<div data-message-author-role="assistant"><p>still streaming</p></div>
</main>`

const claudeThread = `<div class="grid">
<div class="font-user-message">hello</div>
<div class="font-claude-message"><p>old reply</p></div>
<div class="font-claude-message"><p>latest reply</p><pre><code>go test ./...</code></pre></div>
</div>`

func TestAdapterMatch(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://chatgpt.com/c/123", "ChatGPT"},
		{"https://chat.openai.com/c/1", "ChatGPT"},
		{"https://claude.ai/chat/abc", "Claude"},
		{"https://example.com", ""},
	}
	p := NewProducer(nil, nil, Options{})
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			a, ok := p.AdapterFor(tt.url)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, a.Name())
		})
	}
}

func TestChatGPT_TakesLatestRenderedReply(t *testing.T) {
	in, err := ChatGPT{}.Capture(NewExtractor(), Payload{
		URL:   "https://chatgpt.com/c/123",
		Title: "Go question",
		HTML:  chatgptThread,
	})
	require.NoError(t, err)
	assert.Equal(t, clip.TypeAIResponse, in.Type)
	assert.Equal(t, "second *answer*", in.Content)
	assert.Equal(t, "Go question", in.SourceTitle)
	assert.Contains(t, in.RawHTML, "<em>answer</em>")
}

func TestClaude_TakesLatestReply(t *testing.T) {
	in, err := Claude{}.Capture(NewExtractor(), Payload{URL: "https://claude.ai/chat/x", HTML: claudeThread})
	require.NoError(t, err)
	assert.Equal(t, clip.TypeAIResponse, in.Type)
	assert.Contains(t, in.Content, "latest reply")
	assert.Contains(t, in.Content, "go test ./...")
	assert.NotContains(t, in.Content, "old reply")
	assert.Equal(t, "Claude Chat", in.SourceTitle)
}

func TestClaude_FallsBackToPreWrap(t *testing.T) {
	in, err := Claude{}.Capture(NewExtractor(), Payload{
		URL:   "https://claude.ai/chat/x",
		Title: "Named chat",
		HTML:  `<div><div class="whitespace-pre-wrap">plain reply</div></div>`,
	})
	require.NoError(t, err)
	assert.Equal(t, "plain reply", in.Content)
	assert.Equal(t, "Named chat", in.SourceTitle)
}

func TestAdapters_NoReply(t *testing.T) {
	for _, a := range DefaultAdapters() {
		_, err := a.Capture(NewExtractor(), Payload{HTML: "<p>nothing here</p>"})
		assert.True(t, errors.Is(err, errors.ErrCapture), a.Name())
	}
}

func TestCaptureAdapter(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.producer.CaptureAdapter(context.Background(), Payload{
		URL:  "https://chatgpt.com/c/123",
		HTML: chatgptThread,
	})
	require.NoError(t, err)
	assert.Equal(t, clip.TypeAIResponse, res.Clip.Type)
	assert.Len(t, env.repo.Staging(), 1)

	_, err = env.producer.CaptureAdapter(context.Background(), Payload{URL: "https://example.com", HTML: "<p>x</p>"})
	assert.True(t, errors.Is(err, errors.ErrCapture))
}
