package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"tripwise/internal/types"
)

// mockGenerationAPI implements GenerationAPI for testing.
type mockGenerationAPI struct {
	createFn func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (m *mockGenerationAPI) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return m.createFn(ctx, request)
}

func guideCompletion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

// ---------------------------------------------------------------------------
// GenerateCityGuide Tests
// ---------------------------------------------------------------------------

func TestGenerateCityGuide_Success(t *testing.T) {
	var capturedReq openai.ChatCompletionRequest

	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			capturedReq = request
			return guideCompletion(`{"name":"Porto","local_food_tip":"francesinha"}`), nil
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	raw, err := client.GenerateCityGuide(context.Background(), "Porto", "Portugal")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// The raw document must be returned as-is for schema validation upstream.
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("returned content is not valid JSON: %v", err)
	}
	if doc["name"] != "Porto" {
		t.Errorf("expected name Porto, got %v", doc["name"])
	}

	// Verify the request shape.
	if capturedReq.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", capturedReq.Model)
	}
	if capturedReq.ResponseFormat == nil || capturedReq.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Error("expected JSON object response format")
	}
	if len(capturedReq.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(capturedReq.Messages))
	}
	if capturedReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("expected first message role system, got %s", capturedReq.Messages[0].Role)
	}
	if !strings.Contains(capturedReq.Messages[0].Content, "hidden_gems") {
		t.Error("expected system prompt to pin the guide schema")
	}
	if capturedReq.Messages[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("expected second message role user, got %s", capturedReq.Messages[1].Role)
	}
	if !strings.Contains(capturedReq.Messages[1].Content, `"Porto"`) {
		t.Errorf("expected user message to name the city, got: %s", capturedReq.Messages[1].Content)
	}
	if !strings.Contains(capturedReq.Messages[1].Content, "Portugal") {
		t.Errorf("expected user message to carry the country hint, got: %s", capturedReq.Messages[1].Content)
	}
}

func TestGenerateCityGuide_NoCountryHint(t *testing.T) {
	var capturedReq openai.ChatCompletionRequest

	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			capturedReq = request
			return guideCompletion(`{"name":"Singapore"}`), nil
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	if _, err := client.GenerateCityGuide(context.Background(), "Singapore", ""); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	userMsg := capturedReq.Messages[1].Content
	if !strings.Contains(userMsg, `"Singapore"`) {
		t.Errorf("expected user message to name the city, got: %s", userMsg)
	}
	if strings.Contains(userMsg, " in ") {
		t.Errorf("expected no country clause without a hint, got: %s", userMsg)
	}
}

// ---------------------------------------------------------------------------
// GenerateItinerary Tests
// ---------------------------------------------------------------------------

func TestGenerateItinerary_Success(t *testing.T) {
	var capturedReq openai.ChatCompletionRequest

	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			capturedReq = request
			return guideCompletion(`{"city":"Florence","country":"Italy","days":[{"day":1,"morning":"Uffizi"}]}`), nil
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	raw, err := client.GenerateItinerary(context.Background(), types.ItineraryPrompt{
		City:      "Florence",
		Country:   "Italy",
		Days:      3,
		Interests: []string{"art", "food"},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw itinerary content")
	}

	userMsg := capturedReq.Messages[1].Content
	if !strings.Contains(userMsg, "3 day(s) in Florence, Italy") {
		t.Errorf("expected user message to carry days/city/country, got: %s", userMsg)
	}
	if !strings.Contains(userMsg, "art, food") {
		t.Errorf("expected user message to carry interests, got: %s", userMsg)
	}
}

func TestGenerateItinerary_MinimalPrompt(t *testing.T) {
	var capturedReq openai.ChatCompletionRequest

	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			capturedReq = request
			return guideCompletion(`{"city":"Tokyo","days":[]}`), nil
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	_, err := client.GenerateItinerary(context.Background(), types.ItineraryPrompt{
		City: "Tokyo",
		Days: 1,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	userMsg := capturedReq.Messages[1].Content
	if !strings.Contains(userMsg, "1 day(s) in Tokyo") {
		t.Errorf("unexpected user message: %s", userMsg)
	}
	if strings.Contains(userMsg, "interested in") {
		t.Errorf("expected no interests clause, got: %s", userMsg)
	}
}

// ---------------------------------------------------------------------------
// Error Paths
// ---------------------------------------------------------------------------

func TestGenerate_NoChoices(t *testing.T) {
	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, nil
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	_, err := client.GenerateCityGuide(context.Background(), "Porto", "Portugal")
	if err == nil {
		t.Fatal("expected error for empty choices, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamGeneration {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamGeneration, appErr.Code)
	}
}

func TestGenerate_EmptyContent(t *testing.T) {
	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return guideCompletion("   "), nil
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	_, err := client.GenerateCityGuide(context.Background(), "Porto", "Portugal")
	if err == nil {
		t.Fatal("expected error for blank content, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamGeneration {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamGeneration, appErr.Code)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, &openai.APIError{
				HTTPStatusCode: http.StatusTooManyRequests,
				Message:        "Rate limit reached",
			}
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	_, err := client.GenerateItinerary(context.Background(), types.ItineraryPrompt{City: "Rome", Days: 2})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}

func TestGenerate_ServerError(t *testing.T) {
	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, &openai.APIError{
				HTTPStatusCode: http.StatusInternalServerError,
				Message:        "The server had an error",
			}
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	_, err := client.GenerateCityGuide(context.Background(), "Porto", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

func TestGenerate_GenericError(t *testing.T) {
	mock := &mockGenerationAPI{
		createFn: func(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, fmt.Errorf("network timeout")
		},
	}

	client := NewOpenAIClientWithAPI(mock, OpenAIClientConfig{Model: "gpt-4o"})

	_, err := client.GenerateCityGuide(context.Background(), "Porto", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamGeneration {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamGeneration, appErr.Code)
	}
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ GuideOracle = (*OpenAIClient)(nil)
