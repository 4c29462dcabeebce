package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

// defaultExtractionModel is the chat model used when EXTRACTION_MODEL is
// not configured.
const defaultExtractionModel = "gpt-4o-mini"

const extractionSystemPrompt = `You are a medical data extraction assistant.
Your job is to extract structured medical information from patient voice transcriptions.

Extract the following information when available:
- Current medications (name, dosage, frequency)
- Known allergies
- Chronic medical conditions
- Previous weight loss attempts and outcomes
- Weight loss goals
- Current weight and height
- Concerns or questions about GLP-1 therapy

Respond with a single JSON object:
{
  "medications": [{"name": "", "dosage": "", "frequency": ""}],
  "allergies": [],
  "chronic_conditions": [],
  "weight_history": {
    "current_weight": "",
    "current_height": "",
    "previous_attempts": [],
    "weight_loss_goals": ""
  },
  "concerns": [],
  "additional_notes": ""
}
If information is not provided, use null or an empty list.`

// ErrEmptyTranscript is returned when there is nothing to extract.
var ErrEmptyTranscript = errors.New("transcript is empty")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor turns raw voice-intake transcripts into structured medical
// history via a chat completion.
type Extractor struct {
	client  chatClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewExtractor creates an extractor using the OpenAI API. Returns nil when
// no API key is configured.
func NewExtractor(apiKey, model string, timeout time.Duration, logger *logging.Logger) *Extractor {
	if apiKey == "" {
		return nil
	}
	return newExtractorWithClient(openai.NewClient(apiKey), model, timeout, logger)
}

func newExtractorWithClient(client chatClient, model string, timeout time.Duration, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	if model == "" {
		model = defaultExtractionModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// Extract runs the transcript through the extraction prompt and returns the
// structured medical history as raw JSON.
func (e *Extractor) Extract(ctx context.Context, transcript string) (json.RawMessage, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, ErrEmptyTranscript
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Extract medical information from this patient transcript:\n\n" + transcript},
		},
		MaxTokens: 2000,
	})
	if err != nil {
		return nil, fmt.Errorf("intake: extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("intake: extraction returned no choices")
	}

	content := resp.Choices[0].Message.Content
	extracted, err := parseExtraction(content)
	if err != nil {
		e.logger.Warn("extraction response was not valid JSON", "error", err)
		// Preserve the raw text so nothing the patient said is lost.
		fallback, _ := json.Marshal(map[string]string{"raw_extraction": content})
		return fallback, nil
	}
	return extracted, nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseExtraction(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	// Models occasionally wrap the JSON in prose or code fences.
	if match := jsonObjectPattern.FindString(trimmed); match != "" && json.Valid([]byte(match)) {
		return json.RawMessage(match), nil
	}
	return nil, fmt.Errorf("no JSON object in extraction response")
}
