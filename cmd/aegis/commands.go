package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisguard/aegis/internal/config"
	"github.com/aegisguard/aegis/internal/ingest"
	"github.com/aegisguard/aegis/internal/ollama"
	"github.com/aegisguard/aegis/internal/retrieval"
	"github.com/aegisguard/aegis/internal/storage"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the compliance rule index from a directory of documents",
	Long: `Build the compliance rule index from a directory of documents.

Supported formats: .txt, .md, .html, .pdf. Documents are split into
passages, embedded with the configured embedding model, and persisted
in the local SQLite index. Running index again adds to the existing
index.

Examples:
  aegis index --docs ./compliance-docs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		docsDir, _ := cmd.Flags().GetString("docs")
		if docsDir == "" {
			return fmt.Errorf("--docs is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		client := ollama.New(cfg.Ollama.BaseURL)
		if !client.IsRunning(ctx) {
			return fmt.Errorf("ollama is not reachable at %s", cfg.Ollama.BaseURL)
		}

		printStep("Loading documents from %s...", docsDir)
		docs, err := ingest.LoadDocuments(docsDir)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no supported documents in %s (supported: %v)", docsDir, ingest.SupportedExtensions())
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		printStep("Embedding passages with %s...", cfg.Ollama.EmbedModel)
		embedder := retrieval.NewEmbedder(client, cfg.Ollama.EmbedModel)
		builder := ingest.NewBuilder(embedder, retrieval.NewSQLiteStore(store.DB()), nil)

		count, err := builder.Build(ctx, docs)
		if err != nil {
			return err
		}

		printSuccess("Indexed %d passages from %d documents", count, len(docs))
		return nil
	},
}

func init() {
	indexCmd.Flags().String("docs", "", "directory of compliance documents to index")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aegis configuration and readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Monitor", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Monitor", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Monitor", "error (HTTP %d)", resp.StatusCode)
			}
		}

		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}

		printStatus("Worker model", "%s", cfg.Ollama.WorkerModel)
		printStatus("Guardian model", "%s", cfg.Ollama.GuardianModel)
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

		if cfg.Speech.BaseURL != "" {
			printStatus("Speech service", "%s", cfg.Speech.BaseURL)
		} else {
			printStatus("Speech service", "mock (no speech.base_url configured)")
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			printStatus("Rule index", "unavailable (%v)", err)
		} else {
			defer store.Close()
			count, countErr := retrieval.NewSQLiteStore(store.DB()).Count()
			if countErr != nil {
				printStatus("Rule index", "unavailable (%v)", countErr)
			} else {
				printStatus("Rule index", "%d passages", count)
			}
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}
