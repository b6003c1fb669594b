package ingest

import (
	"context"
	"fmt"
	"log"
	"time"
)

// SelectOptions describes which transcription backend to stand up.
type SelectOptions struct {
	Provider       string
	Model          string
	Mode           string
	ForceReal      bool
	GeminiAPIKey   string
	DeepgramAPIKey string
	SimulatedDelay time.Duration
}

// Select picks the transcriber once, at startup. Real providers are only
// engaged in production mode (or with ForceReal); anything unconfigured
// falls back to simulation so the pipeline stays usable end to end.
func Select(ctx context.Context, opts SelectOptions) (Transcriber, error) {
	simulated := func(reason string) Transcriber {
		log.Printf("ingest: using simulated transcription (%s)", reason)
		return NewSimulated(opts.SimulatedDelay)
	}

	if opts.Provider == "" || opts.Provider == "simulated" {
		return simulated("no provider configured"), nil
	}
	if opts.Mode != "production" && !opts.ForceReal {
		return simulated(fmt.Sprintf("mode %q without force_real", opts.Mode)), nil
	}

	switch opts.Provider {
	case "gemini":
		if opts.GeminiAPIKey == "" {
			return simulated("GEMINI_API_KEY not set"), nil
		}
		t, err := NewGeminiTranscriber(ctx, opts.GeminiAPIKey, opts.Model)
		if err != nil {
			return nil, err
		}
		log.Printf("ingest: using gemini transcription (model=%s)", opts.Model)
		return t, nil
	case "deepgram":
		if opts.DeepgramAPIKey == "" {
			return simulated("DEEPGRAM_API_KEY not set"), nil
		}
		log.Printf("ingest: using deepgram transcription (model=%s)", opts.Model)
		return NewDeepgramTranscriber(opts.DeepgramAPIKey, opts.Model), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", opts.Provider)
	}
}
