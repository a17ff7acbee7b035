package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const transcribePrompt = `You are an OCR engine. Transcribe the receipt in the image exactly as printed,
one receipt line per output line, keeping prices and quantities on the same line as their item.
Do not correct, total, or interpret anything.
Respond with a JSON object: {"text": "<transcription>", "confidence": <0-100 estimate of legibility>}`

// OpenAIRecognizer transcribes receipt images with an OpenAI vision model.
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
}

// NewOpenAIRecognizer creates a recognizer using the given API key and model.
func NewOpenAIRecognizer(apiKey, model string) *OpenAIRecognizer {
	return NewOpenAIRecognizerWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIRecognizerWithConfig creates a recognizer from a client config,
// e.g. to point at a proxy or a test server.
func NewOpenAIRecognizerWithConfig(config openai.ClientConfig, model string) *OpenAIRecognizer {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIRecognizer{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// ProcessImage sends the image as a data URL and returns the transcription.
func (r *OpenAIRecognizer) ProcessImage(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, ErrEmptyImage
	}

	imageURL := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: transcribePrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("transcription request to OpenAI failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("OpenAI returned no choices for transcription")
	}

	var result Result
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal transcription response: %w. Response: %s", err, content)
	}
	result.Confidence = clampConfidence(result.Confidence)
	return result, nil
}
