package ingest

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiInterimInstruction = "Transcribe this audio exactly as spoken. " +
	"It is an interim slice of an ongoing recording and may start or end mid-sentence; transcribe only what is audible. " +
	"Return only the spoken words with punctuation, no commentary or labels. " +
	"If there is no speech, return an empty response."

const geminiFinalInstruction = "Transcribe this audio exactly as spoken. " +
	"It is the final segment of the recording, so close out any trailing sentence naturally. " +
	"Return only the spoken words with punctuation, no commentary or labels. " +
	"If there is no speech, return an empty response."

func geminiInstruction(isFinal bool) string {
	if isFinal {
		return geminiFinalInstruction
	}
	return geminiInterimInstruction
}

// GeminiTranscriber sends the raw audio chunk inline to a Gemini model
// with a transcription instruction.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
}

func NewGeminiTranscriber(ctx context.Context, apiKey, model string) (*GeminiTranscriber, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiTranscriber{client: client, model: model}, nil
}

func (g *GeminiTranscriber) Name() string { return "gemini" }

func (g *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string, isFinal bool) (Result, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: audio}},
			{Text: geminiInstruction(isFinal)},
		},
	}}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Result{}, fmt.Errorf("gemini transcription: %w", err)
	}

	return Result{Text: strings.TrimSpace(result.Text())}, nil
}
