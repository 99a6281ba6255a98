package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

const topicPrefix = "Topic: "

// Stage is one agent in the writing pipeline. Instructions become the system
// prompt; Task is the human request appended after the topic.
type Stage struct {
	Name         string
	Instructions string
	Task         string
}

// DefaultStages returns the research, review, writing and editing agents in order.
func DefaultStages() []Stage {
	return []Stage{
		{
			Name:         "researcher",
			Instructions: "You research topics thoroughly. Focus on specific products, projects and sources, and report concrete facts with where they came from.",
			Task:         "Research the topic above and list the key findings, notable products and sources.",
		},
		{
			Name:         "research_checker",
			Instructions: "You check research for relevance to the original request. Drop anything off-topic and point out gaps.",
			Task:         "Review the research below against the topic. Return only the relevant findings, noting any gaps.",
		},
		{
			Name:         "writer",
			Instructions: "You write engaging blog posts from checked research. Write prose, not just a list.",
			Task:         "Write a blog post about the topic using the checked research below.",
		},
		{
			Name:         "editor",
			Instructions: "You review and polish blog posts. Order the post and any lists in the way most engaging to someone working in AI.",
			Task:         "Edit the draft below and return the final version in markdown only.",
		},
	}
}

// Pipeline runs each stage against a single model, feeding every stage the
// previous stage's output. The last stage's output is the article.
type Pipeline struct {
	model       llms.Model
	provider    string
	stages      []Stage
	limiter     *rate.Limiter
	logger      *logrus.Entry
	callOptions []llms.CallOption
}

type Option func(*Pipeline)

func WithStages(stages ...Stage) Option {
	return func(p *Pipeline) {
		if len(stages) > 0 {
			p.stages = stages
		}
	}
}

// WithLimiter paces model calls. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

func WithLogger(logger *logrus.Entry) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithCallOptions(opts ...llms.CallOption) Option {
	return func(p *Pipeline) { p.callOptions = append(p.callOptions, opts...) }
}

// WithProvider names the provider in classified errors and logs.
func WithProvider(name string) Option {
	return func(p *Pipeline) { p.provider = name }
}

func NewPipeline(model llms.Model, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:    model,
		provider: "llm",
		stages:   DefaultStages(),
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewRequestLimiter returns a limiter allowing rpm calls per minute, or nil when rpm is not positive.
func NewRequestLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

func (p *Pipeline) Generate(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", ErrGenerationFailed)
	}

	previous := ""
	for _, stage := range p.stages {
		out, err := p.runStage(ctx, stage, topic, previous)
		if err != nil {
			return "", fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		previous = out
	}
	return previous, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, topic, previous string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, stage.Instructions),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(stage, topic, previous)),
	}

	p.logger.WithFields(logrus.Fields{"stage": stage.Name, "provider": p.provider}).Debug("running stage")
	resp, err := p.model.GenerateContent(ctx, messages, p.callOptions...)
	if err != nil {
		return "", classifyError(p.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyContent
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

func buildPrompt(stage Stage, topic, previous string) string {
	var b strings.Builder
	b.WriteString(topicPrefix)
	b.WriteString(topic)
	b.WriteString("\n\n")
	b.WriteString(stage.Task)
	if previous != "" {
		b.WriteString("\n\n---\n")
		b.WriteString(previous)
	}
	return b.String()
}

var _ Generator = (*Pipeline)(nil)
