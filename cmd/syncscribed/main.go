package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harshbhati1/syncscribe/internal/config"
	"github.com/harshbhati1/syncscribe/internal/gdrive"
	"github.com/harshbhati1/syncscribe/internal/ingest"
	"github.com/harshbhati1/syncscribe/internal/llm"
	"github.com/harshbhati1/syncscribe/internal/server"
	"github.com/harshbhati1/syncscribe/internal/storage"
	"github.com/harshbhati1/syncscribe/internal/summary"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("syncscribed: starting")

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transcriber, err := ingest.Select(ctx, ingest.SelectOptions{
		Provider:       cfg.Transcribe.Provider,
		Model:          cfg.Transcribe.Model,
		Mode:           cfg.Mode,
		ForceReal:      cfg.Transcribe.ForceReal,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		DeepgramAPIKey: cfg.DeepgramAPIKey,
	})
	if err != nil {
		log.Fatalf("transcriber init failed: %v", err)
	}
	log.Printf("transcriber: %s", transcriber.Name())

	var summarizer server.Summarizer
	if cfg.OpenAIAPIKey != "" {
		summarizer = summary.NewOpenAI(cfg.OpenAIAPIKey, cfg.SummaryModel, store)
	}

	chat, err := buildChatClient(cfg)
	if err != nil {
		log.Fatalf("chat client init failed: %v", err)
	}
	if chat == nil {
		log.Printf("warning: chat disabled, no usable LLM API key for %q", cfg.ChatModel)
	}

	hub := server.NewHub()
	handler := server.Handler(server.Deps{
		Store:      store,
		Ingestor:   ingest.NewService(transcriber, cfg.Transcribe.DebugDumpDir),
		Hub:        hub,
		Summarizer: summarizer,
		Chat:       chat,
		AuthToken:  cfg.AuthToken,
		Mode:       cfg.Mode,
		Warnings:   warnings,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		log.Printf("api listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		startDriveBackups(ctx, cfg, store.Path())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("syncscribed: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// buildChatClient picks the chat provider from the configured model.
// "provider/model" names the provider explicitly; a bare model name uses
// whichever provider has a key configured. Returns nil when no usable
// key exists; chat is then disabled, not fatal.
func buildChatClient(cfg config.Config) (server.ChatClient, error) {
	provider, model := "", cfg.ChatModel
	if strings.Contains(cfg.ChatModel, "/") {
		var err error
		provider, model, err = llm.ParseModel(cfg.ChatModel)
		if err != nil {
			return nil, err
		}
	} else {
		switch {
		case cfg.OpenAIAPIKey != "":
			provider = "openai"
		case cfg.AnthropicAPIKey != "":
			provider = "anthropic"
		case cfg.GeminiAPIKey != "":
			provider = "gemini"
		default:
			return nil, nil
		}
	}

	var key string
	switch provider {
	case "openai":
		key = cfg.OpenAIAPIKey
	case "anthropic":
		key = cfg.AnthropicAPIKey
	case "gemini":
		key = cfg.GeminiAPIKey
	}
	if key == "" {
		return nil, nil
	}

	client, err := llm.NewClient(provider, key, model)
	if err != nil {
		return nil, err
	}
	return llm.NewChat(client), nil
}

func startDriveBackups(ctx context.Context, cfg config.Config, dbPath string) {
	syncer, err := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
	if err != nil {
		log.Printf("warning: drive backup disabled: %v", err)
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				date := time.Now().UTC().Format("2006-01-02")
				if err := syncer.Backup(dbPath, date); err != nil {
					log.Printf("drive backup error: %v", err)
				}
			}
		}
	}()
}
