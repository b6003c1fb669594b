package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harshbhati1/syncscribe/internal/capture"
	"github.com/harshbhati1/syncscribe/internal/config"
	"github.com/harshbhati1/syncscribe/internal/recorder"
	"github.com/harshbhati1/syncscribe/internal/storage"
	"github.com/harshbhati1/syncscribe/internal/transcript"
)

const framesPerBuffer = 1024

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	title := flag.String("title", "", "session title (optional)")
	fromStdin := flag.Bool("stdin", false, "read PCM16-LE audio from stdin instead of the microphone")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	device, sampleRate := openDevice(&cfg, *fromStdin)
	if device == nil {
		log.Fatalf("no capture device available")
	}

	uploader := recorder.NewHTTPUploader(cfg.ServerURL, recorder.StaticToken(cfg.AuthToken))
	controller := recorder.NewController(uploader, uploader, recorder.Options{
		SampleRate:    sampleRate,
		Channels:      1,
		ChunkInterval: cfg.ParsedChunkInterval(),
	}, recorder.Callbacks{
		OnSegment: func(seg transcript.Segment) {
			marker := ""
			if seg.IsErrorFallback {
				marker = " (!)"
			}
			log.Printf("[%02d:%02d]%s %s", seg.RecordingTime/60, seg.RecordingTime%60, marker, seg.Text)
		},
		OnState: func(s recorder.State) {
			log.Printf("session: %s", s)
		},
		OnFatal: func(err error) {
			log.Printf("session aborted: %v", err)
		},
	})

	if err := controller.Start(device, *title); err != nil {
		log.Fatalf("start recording failed: %v", err)
	}
	log.Printf("recording session %s at %d Hz, SIGUSR1 toggles pause, Ctrl-C stops", controller.SessionID(), sampleRate)

	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-toggle:
			togglePause(controller)
		case <-stop:
			break loop
		}
	}

	log.Println("stopping session")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := controller.Stop(ctx)
	if err != nil {
		log.Fatalf("stop failed: %v", err)
	}
	report(cfg, result)
}

// openDevice tries the configured sample rates in order until the
// microphone opens, the same way dictation tools probe rates the
// hardware may not all support.
func openDevice(cfg *config.Config, fromStdin bool) (capture.Device, int) {
	if fromStdin {
		return capture.NewReaderDevice(os.Stdin, framesPerBuffer*2), cfg.MicSampleRate
	}

	for _, rate := range cfg.SampleRateCandidates() {
		mic, err := capture.OpenMic(rate, framesPerBuffer)
		if err != nil {
			log.Printf("warning: microphone open failed at %d Hz: %v", rate, err)
			continue
		}
		return mic, rate
	}
	return nil, 0
}

func togglePause(controller *recorder.Controller) {
	switch controller.State() {
	case recorder.StateActive:
		if err := controller.Pause(); err != nil {
			log.Printf("pause failed: %v", err)
		}
	case recorder.StatePaused:
		if err := controller.Resume(); err != nil {
			log.Printf("resume failed: %v", err)
		}
	}
}

func report(cfg config.Config, result recorder.StopResult) {
	if !result.Drained {
		log.Printf("warning: some uploads did not finish before the drain timeout")
	}
	if result.UploadFailures > 0 {
		log.Printf("warning: %d chunks failed to upload and were kept as placeholders", result.UploadFailures)
	}
	if result.PersistErr != nil {
		log.Printf("warning: session save failed, transcript printed below: %v", result.PersistErr)
		fmt.Println(result.Document.Transcript)
	} else {
		log.Printf("session %s saved (%d segments)", result.Document.ID, len(result.Document.Segments))
	}

	if cfg.ArchiveDir != "" {
		path, err := storage.NewArchive(cfg.ArchiveDir).Export(result.Document)
		if err != nil {
			log.Printf("warning: markdown export failed: %v", err)
			return
		}
		log.Printf("exported %s", path)
	}
}
