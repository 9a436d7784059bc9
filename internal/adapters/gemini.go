package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/campusiq/ml-analytics/internal/analysis"
	"github.com/campusiq/ml-analytics/internal/errors"
	"github.com/campusiq/ml-analytics/internal/resilience"
)

const (
	// GeminiServiceName is the key this adapter reports health under
	GeminiServiceName = "gemini-api"

	defaultGeminiModel   = "gemini-1.5-flash"
	defaultGeminiTimeout = 10 * time.Second
	maxInsightsLength    = 2000
)

// Enrichment is the outcome of one best-effort Gemini call. A prediction
// is always served; Enriched reports whether insights were attached.
type Enrichment struct {
	Insights   string
	Confidence float64
	Actions    []string
	Attempted  bool
	Enriched   bool
	Reason     string
}

// GeminiAdapter generates narrative insights for rule-based predictions.
// Every call is a single attempt with a hard timeout; failures degrade
// the response to its deterministic form, never fail it.
type GeminiAdapter struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	name    string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
}

// NewGeminiAdapter creates the adapter. An empty API key yields an
// unconfigured adapter whose TryEnrich always skips.
func NewGeminiAdapter(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*GeminiAdapter, error) {
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	if timeout <= 0 {
		timeout = defaultGeminiTimeout
	}

	breaker := resilience.GetCircuitBreaker(GeminiServiceName, resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	adapter := &GeminiAdapter{
		name:    modelName,
		timeout: timeout,
		breaker: breaker,
	}

	if apiKey == "" {
		slog.Info("Gemini adapter running unconfigured, predictions will not be enriched")
		return adapter, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	resilience.RegisterService(GeminiServiceName, nil)

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.Temperature = genai.Ptr[float32](0.4)
	model.MaxOutputTokens = genai.Ptr[int32](512)
	model.ResponseMIMEType = "application/json"

	adapter.client = client
	adapter.model = model

	return adapter, nil
}

const systemPrompt = `You are an advisor on a university student engagement platform.
You receive a rule-based dropout-risk assessment for one student.
Respond with JSON only, matching this schema:
{"insights": string, "confidence": number, "actions": [string]}
Keep insights under 120 words, supportive and specific. List at most three actions.`

// Configured reports whether an API key was supplied
func (a *GeminiAdapter) Configured() bool {
	return a.client != nil
}

// ModelName returns the configured model identifier
func (a *GeminiAdapter) ModelName() string {
	return a.name
}

// TryEnrich asks Gemini to narrate a prediction. It never returns an
// error: on any failure the zero-value enrichment comes back with
// Reason set and the caller serves the deterministic prediction as is.
func (a *GeminiAdapter) TryEnrich(ctx context.Context, studentKey string, pred analysis.Prediction) Enrichment {
	if !a.Configured() {
		return Enrichment{Reason: "gemini not configured"}
	}

	if !resilience.IsServiceAvailable(GeminiServiceName) {
		return Enrichment{Reason: "gemini marked unavailable"}
	}

	if factor := resilience.GetThrottleFactor(GeminiServiceName); factor < 1.0 && rand.Float64() > factor {
		return Enrichment{Reason: "gemini throttled"}
	}

	if !a.breaker.Allow() {
		return Enrichment{Reason: "circuit open"}
	}

	prompt, err := buildPrompt(pred)
	if err != nil {
		return Enrichment{Reason: "prompt build failed"}
	}

	var raw string
	callErr := a.breaker.Call(func() error {
		var genErr error
		raw, genErr = a.generate(ctx, prompt)
		return genErr
	})

	if callErr != nil {
		resilience.RecordError(GeminiServiceName, callErr)
		appErr := errors.ToAppError(callErr)
		slog.Warn("Gemini enrichment failed",
			"student_key", studentKey,
			"category", string(appErr.Category),
			"retryable", errors.IsRetryableError(callErr),
			"error", callErr.Error())

		reason := "gemini call failed"
		if appErr.Category == errors.CategoryTimeout {
			reason = "gemini call timed out"
		}
		return Enrichment{Attempted: true, Reason: reason}
	}

	resilience.RecordRequest(GeminiServiceName, true)

	enr, err := parseEnrichment(raw)
	if err != nil {
		slog.Warn("Gemini returned unparseable payload", "student_key", studentKey, "error", err.Error())
		return Enrichment{Attempted: true, Reason: "unparseable response"}
	}

	enr.Attempted = true
	enr.Enriched = true
	return enr
}

// generate performs the single model call under the adapter timeout
func (a *GeminiAdapter) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.model.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned empty content")
	}

	return sb.String(), nil
}

// promptPayload is the compact assessment handed to the model
type promptPayload struct {
	RiskScore   float64  `json:"risk_score"`
	RiskLevel   string   `json:"risk_level"`
	Confidence  float64  `json:"confidence"`
	RiskFactors []string `json:"risk_factors,omitempty"`
	Strengths   []string `json:"strengths,omitempty"`
}

func buildPrompt(pred analysis.Prediction) (string, error) {
	payload, err := json.Marshal(promptPayload{
		RiskScore:   pred.RiskScore,
		RiskLevel:   pred.RiskLevel,
		Confidence:  pred.Confidence,
		RiskFactors: pred.RiskFactors,
		Strengths:   pred.Strengths,
	})
	if err != nil {
		return "", err
	}

	return "Assessment: " + string(payload), nil
}

// geminiPayload mirrors the JSON schema requested in the system prompt
type geminiPayload struct {
	Insights   string   `json:"insights"`
	Confidence float64  `json:"confidence"`
	Actions    []string `json:"actions"`
}

// parseEnrichment decodes the model output, tolerating markdown fences
// the model sometimes wraps JSON in despite the response MIME type.
func parseEnrichment(raw string) (Enrichment, error) {
	cleaned := stripCodeFence(raw)

	var payload geminiPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return Enrichment{}, fmt.Errorf("failed to decode gemini payload: %w", err)
	}

	if strings.TrimSpace(payload.Insights) == "" {
		return Enrichment{}, fmt.Errorf("gemini payload has no insights")
	}

	insights := strings.TrimSpace(payload.Insights)
	if len(insights) > maxInsightsLength {
		insights = insights[:maxInsightsLength]
	}

	if len(payload.Actions) > 0 {
		var sb strings.Builder
		sb.WriteString(insights)
		sb.WriteString("\n\nSuggested next steps:")
		for _, action := range payload.Actions {
			action = strings.TrimSpace(action)
			if action == "" {
				continue
			}
			sb.WriteString("\n- ")
			sb.WriteString(action)
		}
		insights = sb.String()
	}

	confidence := payload.Confidence
	if confidence < 0 || confidence > 1 {
		confidence = 0
	}

	return Enrichment{
		Insights:   insights,
		Confidence: confidence,
		Actions:    payload.Actions,
	}, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// Close releases the underlying client
func (a *GeminiAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}
