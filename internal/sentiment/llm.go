package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LLMModel asks a chat-completions endpoint for a numeric sentiment
// score and confidence, for the small share of posts the volatility
// prefilter escalates. Grounded on the teacher's
// internal/ai/openai_provider.go request/response shapes; the prompt
// itself matches
// original_source/workers/src/processors/nlp_analyzer.py's
// LightweightLLMModel ("respond with a JSON object containing 'score'
// and 'confidence'").
type LLMModel struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	fallback   Model
}

// NewLLMModel builds a model pointed at a chat-completions endpoint;
// fallback is used when the endpoint is unconfigured or the call fails,
// matching the Python reference's behavior of degrading to the
// transformer model rather than erroring the whole analysis.
func NewLLMModel(endpoint, apiKey, model string, fallback Model) *LLMModel {
	return &LLMModel{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		fallback:   fallback,
	}
}

func (m *LLMModel) Name() string { return "lightweight-llm-" + m.model }

const llmSystemPrompt = "You are a concise sentiment analysis assistant. " +
	"Given the input text, respond with a JSON object containing 'score' and 'confidence'. " +
	"'score' must be a number between -1.0 (very negative) and 1.0 (very positive). " +
	"'confidence' must be a number between 0.0 and 1.0 representing your confidence."

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type llmScorePayload struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

func (m *LLMModel) Predict(ctx context.Context, text string) (Prediction, error) {
	pred, err := m.predictViaAPI(ctx, text)
	if err == nil {
		return pred, nil
	}
	if m.fallback == nil {
		return Prediction{}, err
	}
	return m.fallback.Predict(ctx, text)
}

func (m *LLMModel) predictViaAPI(ctx context.Context, text string) (Prediction, error) {
	if m.endpoint == "" || m.apiKey == "" {
		return Prediction{}, fmt.Errorf("llm: not configured")
	}

	prompt := "Text:\n\"\"\"" + text + "\"\"\"\n\nReturn only valid JSON: {\"score\": float, \"confidence\": float}."
	reqBody := chatRequest{
		Model: m.model,
		Messages: []chatMessage{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   50,
		Temperature: 0.0,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(raw))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Prediction{}, fmt.Errorf("llm: status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Prediction{}, fmt.Errorf("llm: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return Prediction{}, fmt.Errorf("llm: empty response")
	}

	var payload llmScorePayload
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Prediction{}, fmt.Errorf("llm: malformed json payload: %w", err)
	}

	return Prediction{
		Score:      clamp(payload.Score, -1, 1),
		Confidence: clamp(payload.Confidence, 0, 1),
		ModelName:  m.Name(),
	}, nil
}
