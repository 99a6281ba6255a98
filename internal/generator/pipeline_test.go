package generator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel answers each call with the next scripted reply and records prompts.
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
	systems []string
}

type reply struct {
	text string
	err  error
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		for _, part := range msg.Parts {
			text, ok := part.(llms.TextContent)
			if !ok {
				continue
			}
			if msg.Role == llms.ChatMessageTypeSystem {
				m.systems = append(m.systems, text.Text)
			} else {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: next.text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestPipeline_ChainsStages(t *testing.T) {
	model := &scriptedModel{replies: []reply{
		{text: "facts"}, {text: "checked facts"}, {text: "draft"}, {text: "# Final\n\npolished"},
	}}
	p := NewPipeline(model)

	out, err := p.Generate(context.Background(), "Rust vs Go")
	require.NoError(t, err)
	assert.Equal(t, "# Final\n\npolished", out)

	require.Len(t, model.prompts, 4)
	require.Len(t, model.systems, 4)
	for _, prompt := range model.prompts {
		assert.Contains(t, prompt, "Topic: Rust vs Go")
	}
	assert.NotContains(t, model.prompts[0], "---")
	assert.Contains(t, model.prompts[1], "facts")
	assert.Contains(t, model.prompts[2], "checked facts")
	assert.Contains(t, model.prompts[3], "draft")
}

func TestPipeline_EmptyStageOutput(t *testing.T) {
	model := &scriptedModel{replies: []reply{{text: "facts"}, {text: "   "}}}
	p := NewPipeline(model)

	_, err := p.Generate(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Contains(t, err.Error(), "research_checker")
}

func TestPipeline_ClassifiesProviderErrors(t *testing.T) {
	model := &scriptedModel{replies: []reply{{err: errors.New("429 Too Many Requests")}}}
	p := NewPipeline(model, WithProvider("openai"))
	_, err := p.Generate(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrRateLimited)

	model = &scriptedModel{replies: []reply{{err: errors.New("bad request")}}}
	p = NewPipeline(model)
	_, err = p.Generate(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestPipeline_CustomStages(t *testing.T) {
	model := &scriptedModel{replies: []reply{{text: "only"}}}
	p := NewPipeline(model, WithStages(Stage{Name: "solo", Instructions: "be brief", Task: "write"}))

	out, err := p.Generate(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, "only", out)
	assert.Equal(t, []string{"be brief"}, model.systems)
}

func TestPipeline_RejectsBlankTopic(t *testing.T) {
	p := NewPipeline(&scriptedModel{})
	_, err := p.Generate(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestPipeline_LimiterHonoursContext(t *testing.T) {
	limiter := NewRequestLimiter(1)
	require.NotNil(t, limiter)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPipeline(&scriptedModel{replies: []reply{{text: "x"}}}, WithLimiter(limiter))
	_, err := p.Generate(ctx, "topic")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Nil(t, NewRequestLimiter(0))
}
