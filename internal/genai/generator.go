package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/revisehq/cardsmith/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the chat model used for flashcard generation.
	DefaultModel = openai.GPT4o

	// DefaultRequestsPerSecond stays under the published low single-digit
	// requests/second limit of the generation service.
	DefaultRequestsPerSecond = 1.0

	maxResponseTokens = 16000
)

var (
	// ErrNoAPIKey is returned when the generation API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrEmptyBatch is returned when a generation call carries no topics
	ErrEmptyBatch = errors.New("batch contains no topics")
	// ErrNoChoices is returned when the model response contains no completion
	ErrNoChoices = errors.New("no completion returned")
)

// BatchRequest carries one batch of topics to generate cards for.
type BatchRequest struct {
	Source   string
	Week     string
	Topics   []domain.Topic
	StartSID int
}

// BatchResult holds the cards generated for a batch. Validation problems are
// reported as warnings rather than failing the batch; a card with a schema
// issue is usually still importable.
type BatchResult struct {
	Cards    []domain.Card
	Warnings []string
}

// Generator defines the interface for flashcard generation
type Generator interface {
	GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)
}

// ChatAPI defines the interface for the chat completion call
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps the generation service API behind a rate limiter.
type Client struct {
	api     ChatAPI
	model   string
	limiter *rate.Limiter
}

type Config struct {
	APIKey            string
	Model             string
	RequestsPerSecond float64
}

// NewClient creates a new generation client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new generation client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Client{
		api:     openai.NewClient(cfg.APIKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// NewClientFromEnv creates a new generation client using the OPENAI_API_KEY
// environment variable.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// GenerateBatch sends one batch of topics in a single completion call and
// parses the returned card JSON. The call blocks on the rate limiter first,
// so a caller looping over batches cannot exceed the service's limits even
// without its own pacing.
func (c *Client) GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Topics) == 0 {
		return nil, ErrEmptyBatch
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxResponseTokens,
		Temperature: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, ErrNoChoices)
	}

	return ParseResponse(resp.Choices[0].Message.Content)
}

type batchPayload struct {
	Source string        `json:"source"`
	Week   string        `json:"week"`
	Cards  []domain.Card `json:"cards"`
}

// ParseResponse strips any markdown code fences the model wrapped the JSON in
// and unmarshals the card payload. Card validation problems become warnings.
func ParseResponse(text string) (*BatchResult, error) {
	text = StripCodeFences(text)

	var payload batchPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		preview := text
		if len(preview) > 500 {
			preview = preview[:500]
		}
		return nil, fmt.Errorf("%w: parse response JSON: %v (preview: %s)", domain.ErrGenerationFailed, err, preview)
	}

	result := &BatchResult{Cards: payload.Cards}
	for i, card := range payload.Cards {
		for _, verr := range domain.ValidateCard(card) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("card %d: %v", i+1, verr))
		}
	}
	return result, nil
}

var (
	openFence  = regexp.MustCompile("^```(?:json)?\\s*\n?")
	closeFence = regexp.MustCompile("\n?```\\s*$")
)

// StripCodeFences removes a surrounding markdown code block, if present.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = openFence.ReplaceAllString(text, "")
		text = closeFence.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// BuildPrompt renders the generation prompt for one batch of topics.
func BuildPrompt(req BatchRequest) string {
	var topicsText strings.Builder
	for i, t := range req.Topics {
		fmt.Fprintf(&topicsText, "\n\n=== TOPIC %d: %s ===\n%s", i+1, t.Title, t.Content)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are generating flashcards for CLAT GK from a batch of 2-3 topics.
Output ONLY valid JSON in this exact schema:

{
  "source": %q,
  "week": %q,
  "cards": [
    {
      "deck": "CLAT GK::Awards / Sports / Defence",
      "front": "What is the question?",
      "back": "Concise answer.",
      "tags": ["source:%s", "week:%s", "topic:Awards_Sports_Defence", "sid:%s_%s_####"]
    }
  ]
}

Constraints:

1. deck must be one of:
`, req.Source, req.Week, req.Source, req.Week, req.Source, req.Week)

	for _, deck := range domain.Decks {
		fmt.Fprintf(&b, "   - %s\n", deck)
	}

	fmt.Fprintf(&b, `
2. Create AS MANY cards as needed to cover EVERY factual point in the topics. For CLAT exam prep, DO NOT miss any:
   - Names (people, organizations, places)
   - Dates (when events happened)
   - Numbers (statistics, rankings, amounts)
   - What/Who/Where/When/Why facts
   - Key terms and definitions
   - Relationships between entities
   Aim for 8-15 cards PER TOPIC to ensure comprehensive coverage. More is better than missing facts.

3. front must be a single clear question.

4. back must be concise and unambiguous (1-2 lines).

5. tags must include EXACTLY these formats (NO spaces in tags):
   - source:%s
   - week:%s
   - topic:<OneOf: %s>
   - sid:%s_%s_#### (zero-padded 4-digit unique number, use lowercase for source and week in sid)

6. Return JSON only, no commentary, no markdown code blocks.

7. For the sid tag, use sequential numbers starting from %04d.

Topic Content:
%s
`, req.Source, req.Week, strings.Join(domain.TopicTags, ", "), req.Source, req.Week, req.StartSID, topicsText.String())

	return b.String()
}
