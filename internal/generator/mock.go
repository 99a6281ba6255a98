package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// MockModel is an offline llms.Model that answers every stage with
// deterministic markdown derived from the topic line of the prompt.
type MockModel struct{}

func NewMockModel() *MockModel {
	return &MockModel{}
}

func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prompt strings.Builder
	for _, message := range messages {
		if message.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range message.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
				prompt.WriteString("\n")
			}
		}
	}

	topic := topicFromPrompt(prompt.String())
	body := fmt.Sprintf("# %s\n\n%s is a topic worth a closer look. This draft was produced offline by the mock provider.\n", topic, topic)
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: body, StopReason: "stop"}},
	}, nil
}

func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func topicFromPrompt(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, topicPrefix); ok {
			if topic := strings.TrimSpace(rest); topic != "" {
				return topic
			}
		}
	}
	return "Untitled"
}

var _ llms.Model = (*MockModel)(nil)
