package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"tripwise/internal/types"
)

// cityGuidePrompt instructs the model to emit a guide document matching the
// persisted city schema. The response format is pinned to JSON mode, so the
// model cannot wrap the document in prose.
const cityGuidePrompt = `You are a travel guide writer. Produce a JSON object describing the requested city with exactly these keys:
"name" (string, the city name),
"interests" (object mapping interest categories to short recommendations),
"local_food_tip" (string),
"full_day" (string, a suggested full-day plan),
"seasons" (object mapping season names to travel advice),
"public_transport_tips" (string),
"city_events" (array of notable recurring events),
"places" (array of objects with "name" and "description"),
"hidden_gems" (array of objects with "name" and "description").
Respond with the JSON object only.`

// itineraryPrompt instructs the model to emit a day-by-day itinerary.
const itineraryPrompt = `You are a travel planner. Produce a JSON object with exactly these keys:
"city" (string), "country" (string),
"days" (array with one object per day, each with "day" (number), "morning", "afternoon", "evening" (strings)).
Respond with the JSON object only.`

// GenerationAPI defines the subset of the OpenAI client used by OpenAIClient.
// Extracted for testability — tests can provide a mock implementation.
type GenerationAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClientConfig holds the configuration for creating an OpenAIClient.
type OpenAIClientConfig struct {
	APIKey string
	Model  string
	Logger *slog.Logger
}

// OpenAIClient implements GuideOracle using the OpenAI chat completions API.
// The SDK owns transport-level retries; responses come back as raw JSON that
// callers must validate before trusting.
type OpenAIClient struct {
	api    GenerationAPI
	model  string
	logger *slog.Logger
}

// NewOpenAIClient creates a new OpenAIClient. The httpClient timeout should
// match the generation oracle budget configured for the platform.
func NewOpenAIClient(httpClient *http.Client, cfg OpenAIClientConfig) *OpenAIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	return &OpenAIClient{
		api:    openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// NewOpenAIClientWithAPI creates an OpenAIClient with a pre-configured
// GenerationAPI. Useful for testing with a mock completion interface.
func NewOpenAIClientWithAPI(api GenerationAPI, cfg OpenAIClientConfig) *OpenAIClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIClient{
		api:    api,
		model:  cfg.Model,
		logger: logger,
	}
}

// GenerateCityGuide produces a city guide document for the named city.
// countryHint is folded into the user message so homonym cities (e.g.
// "Cambridge") resolve to the intended country.
func (o *OpenAIClient) GenerateCityGuide(ctx context.Context, cityName string, countryHint string) (json.RawMessage, error) {
	userMsg := fmt.Sprintf("Write the guide for the city %q", cityName)
	if countryHint != "" {
		userMsg = fmt.Sprintf("Write the guide for the city %q in %s", cityName, countryHint)
	}

	return o.complete(ctx, "GenerateCityGuide", cityGuidePrompt, userMsg)
}

// GenerateItinerary produces a day-by-day itinerary document.
func (o *OpenAIClient) GenerateItinerary(ctx context.Context, prompt types.ItineraryPrompt) (json.RawMessage, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan %d day(s) in %s", prompt.Days, prompt.City)
	if prompt.Country != "" {
		fmt.Fprintf(&sb, ", %s", prompt.Country)
	}
	if len(prompt.Interests) > 0 {
		fmt.Fprintf(&sb, ". The traveler is interested in: %s", strings.Join(prompt.Interests, ", "))
	}

	return o.complete(ctx, "GenerateItinerary", itineraryPrompt, sb.String())
}

// complete runs one chat completion in JSON mode and returns the raw content
// of the first choice.
func (o *OpenAIClient) complete(ctx context.Context, operation string, systemMsg string, userMsg string) (json.RawMessage, error) {
	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, mapGenerationError(operation, err)
	}

	if len(resp.Choices) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("%s: generation oracle returned no choices", operation),
			nil,
		)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("%s: generation oracle returned empty content", operation),
			nil,
		)
	}

	return json.RawMessage(content), nil
}

// mapGenerationError translates OpenAI SDK errors into domain AppErrors.
func mapGenerationError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				fmt.Sprintf("%s: generation oracle rate limit exceeded", operation),
				err,
			)
		case apiErr.HTTPStatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("%s: generation oracle server error", operation),
				err,
			)
		}
	}

	return types.NewAppError(
		types.ErrCodeUpstreamGeneration,
		fmt.Sprintf("%s: generation oracle request failed: %v", operation, err),
		err,
	)
}

// Compile-time assertion that OpenAIClient satisfies GuideOracle.
var _ GuideOracle = (*OpenAIClient)(nil)
