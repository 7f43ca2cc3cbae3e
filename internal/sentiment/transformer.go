package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TransformerModel calls a hosted sentiment-classification endpoint,
// truncating input to 512 runes the way a BERT-family tokenizer would
// truncate at its context window. Grounded on the request/response shape
// of the teacher's internal/ai/openai_provider.go (context-scoped
// *http.Client, JSON request/response structs, bearer auth), adapted to a
// binary classifier response instead of a chat completion.
type TransformerModel struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewTransformerModel builds a model pointed at endpoint; an empty
// endpoint means the model is unconfigured and every Predict call fails
// fast so the ensemble falls back to the lexicon model.
func NewTransformerModel(endpoint, apiKey string) *TransformerModel {
	return &TransformerModel{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *TransformerModel) Name() string { return "transformer-distilbert-sst2" }

type transformerRequest struct {
	Text string `json:"text"`
}

type transformerResponse struct {
	Label      string  `json:"label"` // POSITIVE or NEGATIVE
	Confidence float64 `json:"confidence"`
}

func (m *TransformerModel) Predict(ctx context.Context, text string) (Prediction, error) {
	if m.endpoint == "" {
		return Prediction{}, fmt.Errorf("transformer: not configured")
	}

	runes := []rune(text)
	if len(runes) > 512 {
		text = string(runes[:512])
	}

	body, err := json.Marshal(transformerRequest{Text: text})
	if err != nil {
		return Prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("transformer: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Prediction{}, fmt.Errorf("transformer: status %d", resp.StatusCode)
	}

	var out transformerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Prediction{}, fmt.Errorf("transformer: decode: %w", err)
	}

	score := out.Confidence
	if out.Label != "POSITIVE" {
		score = -out.Confidence
	}
	return Prediction{Score: clamp(score, -1, 1), Confidence: clamp(out.Confidence, 0, 1), ModelName: m.Name()}, nil
}
