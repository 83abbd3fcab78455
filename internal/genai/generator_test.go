package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/revisehq/cardsmith/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockChatAPI is a mock for the chat completion API
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func testTopics() []domain.Topic {
	return []domain.Topic{
		{Title: "Fundamental Rights", Content: "Articles 12 to 35 of the Constitution.", Page: 1},
		{Title: "Directive Principles", Content: "Part IV of the Constitution.", Page: 2},
	}
}

const validResponse = `{
  "source": "Constitution Notes",
  "week": "3",
  "cards": [
    {
      "deck": "CLAT GK::Polity & Constitution",
      "front": "Which articles cover fundamental rights?",
      "back": "Articles 12 to 35.",
      "tags": ["source:ConstitutionNotes", "week:3", "topic:Polity_Constitution", "sid:constitutionnotes_3_0001"]
    }
  ]
}`

func newTestClient(api ChatAPI) *Client {
	return &Client{
		api:     api,
		model:   DefaultModel,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestClient_GenerateBatch_Success(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := newTestClient(mockAPI)

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == DefaultModel &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == openai.ChatMessageRoleUser
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: validResponse}},
		},
	}, nil)

	result, err := client.GenerateBatch(context.Background(), BatchRequest{
		Source: "Constitution Notes",
		Week:   "3",
		Topics: testTopics(),
	})
	require.NoError(t, err)
	require.Len(t, result.Cards, 1)
	assert.Equal(t, "CLAT GK::Polity & Constitution", result.Cards[0].Deck)
	assert.Empty(t, result.Warnings)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateBatch_EmptyBatch(t *testing.T) {
	client := newTestClient(new(MockChatAPI))

	_, err := client.GenerateBatch(context.Background(), BatchRequest{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestClient_GenerateBatch_APIError(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := newTestClient(mockAPI)

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("rate limited"))

	_, err := client.GenerateBatch(context.Background(), BatchRequest{Topics: testTopics()})
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}

func TestClient_GenerateBatch_NoChoices(t *testing.T) {
	mockAPI := new(MockChatAPI)
	client := newTestClient(mockAPI)

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, nil)

	_, err := client.GenerateBatch(context.Background(), BatchRequest{Topics: testTopics()})
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}

func TestParseResponse_StripsCodeFences(t *testing.T) {
	fenced := "```json\n" + validResponse + "\n```"

	result, err := ParseResponse(fenced)
	require.NoError(t, err)
	require.Len(t, result.Cards, 1)
	assert.Equal(t, "Which articles cover fundamental rights?", result.Cards[0].Front)
}

func TestParseResponse_InvalidJSON(t *testing.T) {
	_, err := ParseResponse("the model apologizes and returns prose")
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)
}

func TestParseResponse_CollectsValidationWarnings(t *testing.T) {
	bad := `{"source":"s","week":"1","cards":[{"deck":"Wrong Deck","front":"","back":"b","tags":["week:1"]}]}`

	result, err := ParseResponse(bad)
	require.NoError(t, err)
	require.Len(t, result.Cards, 1)
	assert.NotEmpty(t, result.Warnings)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`{"a":1}`))
}

func TestBuildPrompt_IncludesTopicsAndConstraints(t *testing.T) {
	prompt := BuildPrompt(BatchRequest{
		Source:   "Constitution Notes",
		Week:     "3",
		Topics:   testTopics(),
		StartSID: 12,
	})

	assert.Contains(t, prompt, "=== TOPIC 1: Fundamental Rights ===")
	assert.Contains(t, prompt, "=== TOPIC 2: Directive Principles ===")
	assert.Contains(t, prompt, "CLAT GK::Polity & Constitution")
	assert.Contains(t, prompt, "source:Constitution Notes")
	assert.Contains(t, prompt, "starting from 0012")
}
