package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/innerpath/coachd/internal/api"
	"github.com/innerpath/coachd/internal/audience"
	"github.com/innerpath/coachd/internal/composer"
	"github.com/innerpath/coachd/internal/config"
	"github.com/innerpath/coachd/internal/daily"
	"github.com/innerpath/coachd/internal/ingest"
	"github.com/innerpath/coachd/internal/pipeline"
	"github.com/innerpath/coachd/internal/proxy"
	"github.com/innerpath/coachd/internal/retrieval"
	"github.com/innerpath/coachd/internal/scrape"
	"github.com/innerpath/coachd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the coachd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running coachd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coachd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "coachd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "coachd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("COACHD_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("coachd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("coachd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Upstream model API client. Also serves embeddings for retrieval.
	var proxyClient *proxy.Client
	if cfg.OpenAI.BaseURL != "" {
		proxyClient = proxy.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	} else {
		proxyClient = proxy.NewClient(cfg.OpenAI.APIKey)
	}

	// Build enrichment pipeline.
	embedder := retrieval.NewEmbedder(proxyClient, cfg.OpenAI.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore, 0)
	audienceMgr := audience.NewManager(store)
	comp := composer.New(0)
	enricher := pipeline.NewEnricher(retriever, audienceMgr, comp, 0)

	// Voice session broker (optional).
	var broker api.RoomBroker
	if cfg.Daily.APIKey != "" {
		broker = daily.NewClient(cfg.Daily.APIKey)
		slog.Info("voice session broker enabled")
	} else {
		slog.Info("voice session broker disabled (no Daily API key)")
	}

	// Scrape-backed ingestion (optional).
	var scraper ingest.ActorRunner
	if cfg.Scrape.Token != "" {
		scraper = scrape.NewClient(cfg.Scrape.Token)
	}
	extractor := ingest.NewExtractor(nil, scraper, cfg.Scrape.ActorID)

	// Compose the full HTTP surface: chat routes + session broker + admin.
	router := api.NewRouter(proxyClient, enricher, broker, store, vectorStore, cfg.Admin.Token)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start ingest worker.
	worker := ingest.NewWorker(store, embedder, vectorStore, extractor, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Retriever: retriever,
		Vectors:   vectorStore,
		Broker:    broker,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "coachd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("coachd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop coachd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to coachd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Default model", "%s", cfg.OpenAI.DefaultModel)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
	if cfg.Daily.APIKey != "" {
		printStatus("Voice sessions", "enabled")
	} else {
		printStatus("Voice sessions", "disabled")
	}

	// Show entity counts if server is running.
	if resp != nil && resp.StatusCode == 200 && cfg.Admin.Token != "" {
		apiCli := &apiClient{baseURL: serverURL, token: cfg.Admin.Token, httpClient: client}
		analyticsResp, err := apiCli.get(context.Background(), "/admin/analytics")
		if err == nil {
			var counts storage.Counts
			if decodeJSON(analyticsResp, &counts) == nil {
				printStatus("Audience users", "%d", counts.AudienceUsers)
				printStatus("Content sources", "%d (%d ready)", counts.ContentSources, counts.ReadySources)
				printStatus("Sessions", "%d", counts.Sessions)
				printStatus("Knowledge vectors", "%d", counts.Vectors)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
