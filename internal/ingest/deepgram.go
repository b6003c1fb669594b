package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramTranscriber runs each chunk through Deepgram's prerecorded
// endpoint. Chunks are short, so batch latency stays interactive.
type DeepgramTranscriber struct {
	api   *prerecorded.Client
	model string
}

func NewDeepgramTranscriber(apiKey, model string) *DeepgramTranscriber {
	if model == "" {
		model = "nova-2"
	}
	client := listen.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramTranscriber{api: prerecorded.New(client), model: model}
}

func (d *DeepgramTranscriber) Name() string { return "deepgram" }

func (d *DeepgramTranscriber) Transcribe(ctx context.Context, audio []byte, _ string, _ bool) (Result, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		SmartFormat: true,
		Punctuate:   true,
	}

	res, err := d.api.FromStream(ctx, bytes.NewReader(audio), options)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram transcription: %w", err)
	}

	if res == nil || len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return Result{}, nil
	}

	alt := res.Results.Channels[0].Alternatives[0]
	return Result{
		Text:       strings.TrimSpace(alt.Transcript),
		Confidence: alt.Confidence,
	}, nil
}
