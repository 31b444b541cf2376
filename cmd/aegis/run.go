package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aegisguard/aegis/internal/analyst"
	"github.com/aegisguard/aegis/internal/api"
	"github.com/aegisguard/aegis/internal/audio"
	"github.com/aegisguard/aegis/internal/config"
	"github.com/aegisguard/aegis/internal/guardian"
	"github.com/aegisguard/aegis/internal/ingest"
	"github.com/aegisguard/aegis/internal/ollama"
	"github.com/aegisguard/aegis/internal/pipeline"
	"github.com/aegisguard/aegis/internal/retrieval"
	"github.com/aegisguard/aegis/internal/session"
	"github.com/aegisguard/aegis/internal/storage"
	"github.com/aegisguard/aegis/internal/transcribe"
)

// maxSearchK caps results from the debug/ops search surfaces
// (HTTP /rules/search and the MCP search_rules tool).
const maxSearchK = 10

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a live monitoring session",
	Long: `Start a live monitoring session: streaming pipeline, HTTP API, and
optionally the MCP server.

Audio comes from --input: a WAV file replayed at capture speed, or "-"
for raw little-endian PCM16 frames on stdin. Without a configured
speech service (speech.base_url) a scripted mock transcriber is used,
which makes "aegis run --input demo.wav --mock-stt" a credential-free
demo.

The MCP server speaks stdio, so --mcp cannot be combined with
--input -.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		mockSTT, _ := cmd.Flags().GetBool("mock-stt")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		flood, _ := cmd.Flags().GetBool("no-realtime")
		return runMonitor(input, mockSTT, withMCP, flood)
	},
}

func init() {
	runCmd.Flags().String("input", "-", `audio input: WAV file path, or "-" for PCM16 on stdin`)
	runCmd.Flags().Bool("mock-stt", false, "use the scripted mock transcriber even if a speech service is configured")
	runCmd.Flags().Bool("mcp", false, "serve MCP over stdio alongside the pipeline")
	runCmd.Flags().Bool("no-realtime", false, "replay WAV input as fast as possible instead of at capture speed")
}

func runMonitor(input string, mockSTT, withMCP, flood bool) error {
	fmt.Fprintf(os.Stderr, "aegis version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if withMCP && input == "-" {
		return fmt.Errorf("--mcp uses stdio and cannot be combined with --input -")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check model readiness before opening the audio path.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.WorkerModel, cfg.Ollama.GuardianModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// An empty index means every utterance would be judged without
	// grounding. Refuse to start rather than silently monitor blind.
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	count, err := vectorStore.Count()
	if err != nil {
		return fmt.Errorf("checking rule index: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("rule index is empty; run %q first (supported: %v)",
			"aegis index --docs <dir>", ingest.SupportedExtensions())
	}
	slog.Info("rule index loaded", "passages", count)

	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	// A model swap since indexing would fail every search, so the
	// mismatch is surfaced here instead of on the first utterance.
	if err := retrieval.CheckIndexCompatibility(ctx, embedder, vectorStore); err != nil {
		return fmt.Errorf("rule index incompatible with %s: %w", cfg.Ollama.EmbedModel, err)
	}
	retriever := retrieval.NewRetriever(embedder, vectorStore, cfg.Retrieval.TopK)
	// The debug/ops search surfaces take a caller-chosen result count,
	// so they get a wider retriever than the prompt-grounding one.
	searchRetriever := retrieval.NewRetriever(embedder, vectorStore, maxSearchK)

	var transcriber transcribe.Transcriber
	if mockSTT || cfg.Speech.BaseURL == "" {
		slog.Info("using mock transcriber")
		transcriber = transcribe.NewMock()
	} else {
		transcriber = transcribe.NewClient(cfg.Speech.BaseURL, cfg.Speech.APIKey)
	}

	worker := analyst.New(ollamaClient, cfg.Ollama.WorkerModel, cfg.Review.Timeout, nil)
	reviewer := guardian.NewReviewer(ollamaClient, cfg.Ollama.GuardianModel, cfg.Review.QualityThreshold, cfg.Review.Timeout, nil)
	ledger := session.NewLedger()
	runner := pipeline.NewRunner(transcriber, retriever, worker, reviewer, ledger, nil)

	// Audio path: source feeds the assembler, assembler emits chunks.
	asm := audio.NewAssembler(cfg.Audio.SampleRate, cfg.Audio.ChunkDuration, cfg.Audio.QueueSize)
	source, err := openSource(input, cfg.Audio.SampleRate, !flood)
	if err != nil {
		return err
	}

	// HTTP presentation API.
	handler := api.NewAppHandler(api.AppDeps{Ledger: ledger, Retriever: searchRetriever})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "aegis listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Ledger:    ledger,
			Retriever: searchRetriever,
			Analyst:   worker,
			Reviewer:  reviewer,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Pipeline consumes chunks until the assembler closes.
	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- runner.Run(ctx, asm.Chunks())
	}()

	// Capture goroutine drives the source. When the source ends
	// (WAV replayed, stdin closed) the assembler closes and the
	// pipeline drains.
	asm.Start()
	captureDone := make(chan error, 1)
	go func() {
		err := source.Run(ctx, asm)
		asm.Close()
		captureDone <- err
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case err := <-captureDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("audio source failed", "error", err)
		}
		// Let in-flight analysis finish before reporting.
		<-pipelineDone
		printSessionSummary(ledger, asm)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openSource(input string, sampleRate int, realtime bool) (audio.Source, error) {
	if input == "-" {
		return audio.NewPCMSource(os.Stdin, sampleRate), nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("reading audio input: %w", err)
	}
	if dur, derr := audio.WAVDuration(data); derr == nil {
		slog.Info("replaying audio file", "path", input, "seconds", fmt.Sprintf("%.1f", dur))
	}
	src := audio.NewWAVSource(data)
	src.Realtime = realtime
	return src, nil
}

func printSessionSummary(ledger *session.Ledger, asm *audio.Assembler) {
	stats := ledger.Stats()
	printStatus("Utterances", "%d", stats.TranscriptCount)
	printStatus("Alerts", "%d", stats.AlertCount)
	printRate("Compliance", stats.ComplianceRate)
	if dropped := asm.Dropped(); dropped > 0 {
		printWarning("%d audio chunks dropped under backpressure", dropped)
	}
}
