package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/config"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"
)

const summaryPrompt = "You are a portfolio manager's analyst. Given computed portfolio KPIs (epic health counts, initiative health, throughput, WIP, lead time percentiles, top WSJF epics and a Monte Carlo forecast), write a short weekly narrative: what moved, what is at risk, and two or three suggested actions. Do not invent numbers that are not in the input. Plain text, at most 12 lines."

var ErrMissingKey = errors.New("openai: missing key")

type Client struct {
	key   string
	model string
	cli   openai.Client
	log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	timeout := cfg.OpenAITimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return newClient(cfg.OpenAIKey, cfg.OpenAIModel, log, option.WithRequestTimeout(timeout), option.WithMaxRetries(2))
}

func newClient(key, model string, log zerolog.Logger, opts ...option.RequestOption) *Client {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4.1-mini"
	}
	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &Client{key: key, model: model, cli: openai.NewClient(opts...), log: log}
}

// Summarize turns a KPI document into a narrative paragraph for the digest.
func (c *Client) Summarize(ctx context.Context, kpis any) (string, error) {
	if strings.TrimSpace(c.key) == "" {
		return "", ErrMissingKey
	}
	b, err := json.Marshal(kpis)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("model", c.model).Int("bytes", len(b)).Msg("openai Summarize call")
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summaryPrompt),
			openai.UserMessage(string(b)),
		},
	}
	resp, err := c.cli.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
