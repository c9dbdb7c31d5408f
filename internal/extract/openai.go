// Package extract asks a language model for job fields, each with a verbatim
// evidence quote from the page text.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"jobboard-engine/internal/domain"
)

const (
	DefaultModel      = "gpt-4o-mini"
	DefaultMaxTokens  = 1000
	DefaultTextBudget = 15000
	DefaultTimeout    = 60 * time.Second
)

var (
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

	// ErrEmptyResponse means the model answered without any content.
	ErrEmptyResponse = errors.New("no response from model")

	ErrInvalidResponse = errors.New("model response is not valid extraction JSON")
)

// Extractor turns page text into unverified fields. Implementations must treat
// every failure as an error; there is no partial result.
type Extractor interface {
	Extract(ctx context.Context, text string, title *string, finalURL string) (domain.RawExtraction, error)
}

type Options struct {
	APIKey     string
	Model      string
	MaxTokens  int
	TextBudget int
	Timeout    time.Duration

	// BaseURL overrides the API endpoint (tests, proxies, compatible servers).
	BaseURL string
}

// OpenAIExtractor calls the chat-completions API in JSON-object mode.
type OpenAIExtractor struct {
	client openai.Client
	opts   Options
}

func NewOpenAIExtractor(opts Options) (*OpenAIExtractor, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrAPIKeyNotSet
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.TextBudget <= 0 {
		opts.TextBudget = DefaultTextBudget
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// a failed call is surfaced to the user, who decides whether to retry
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIExtractor{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}, nil
}

func (e *OpenAIExtractor) Model() string { return e.opts.Model }

func (e *OpenAIExtractor) Extract(ctx context.Context, text string, title *string, finalURL string) (domain.RawExtraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(BuildUserPrompt(text, title, finalURL, e.opts.TextBudget)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(int64(e.opts.MaxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		},
	}

	start := time.Now()
	completion, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Printf("[extract] url=%q model=%s err=%v", finalURL, e.opts.Model, err)
		return domain.RawExtraction{}, fmt.Errorf("chat completion: %w", err)
	}
	log.Printf("[extract] url=%q model=%s tokens=%d dur_ms=%d",
		finalURL, e.opts.Model, completion.Usage.TotalTokens, time.Since(start).Milliseconds())

	if len(completion.Choices) == 0 {
		return domain.RawExtraction{}, ErrEmptyResponse
	}
	return ParseExtraction(completion.Choices[0].Message.Content)
}

// ParseExtraction decodes the model's JSON object. Missing or null fields
// become empty ExtractionFields; a bare number or bool is kept as its text.
func ParseExtraction(content string) (domain.RawExtraction, error) {
	if strings.TrimSpace(content) == "" {
		return domain.RawExtraction{}, ErrEmptyResponse
	}

	var loose map[string]struct {
		Value    any `json:"value"`
		Evidence any `json:"evidence"`
	}
	if err := json.Unmarshal([]byte(content), &loose); err != nil {
		return domain.RawExtraction{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	field := func(key string) domain.ExtractionField {
		f, ok := loose[key]
		if !ok {
			return domain.ExtractionField{}
		}
		return domain.ExtractionField{Value: scalar(f.Value), Evidence: scalar(f.Evidence)}
	}

	return domain.RawExtraction{
		Title:          field("title"),
		Company:        field("company"),
		Location:       field("location"),
		EmploymentType: field("employment_type"),
		DueDate:        field("due_date"),
		Notes:          field("notes"),
	}, nil
}

func scalar(v any) *string {
	switch t := v.(type) {
	case string:
		return &t
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	}
	return nil
}

var _ Extractor = (*OpenAIExtractor)(nil)
