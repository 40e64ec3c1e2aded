package main

import (
	"context"
	"encoding/json"
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
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/refind-app/refind/internal/api"
	"github.com/refind-app/refind/internal/config"
	"github.com/refind-app/refind/internal/engine"
	"github.com/refind-app/refind/internal/notify"
	"github.com/refind-app/refind/internal/storage"
	"github.com/refind-app/refind/internal/vision"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the refind server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running refind server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show refind system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "refind.pid")
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
	fmt.Fprintf(os.Stderr, "refind version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice. Check the health endpoint before claiming the
	// PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("refind is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("refind is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	transport, cleanup, err := buildTransport(cfg.Notify)
	if err != nil {
		return fmt.Errorf("setting up notification transport: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	var analyzer vision.Analyzer
	if cfg.Vision.BaseURL != "" {
		analyzer = vision.NewClient(cfg.Vision.BaseURL)
		slog.Info("vision analysis enabled", "base_url", cfg.Vision.BaseURL)
	}

	eng := engine.New(store)
	dispatcher := notify.NewDispatcher(store, transport)
	worker := notify.NewWorker(store, dispatcher, 500*time.Millisecond)

	handler := api.NewAppHandler(api.AppDeps{
		Store:  store,
		Engine: eng,
		Vision: analyzer,
		Token:  cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Background discovery and stale-report reminders on cron schedules.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Matching.Schedule, func() {
		result, err := eng.RunDiscovery(ctx)
		if err != nil {
			slog.Error("scheduled discovery failed", "error", err)
			return
		}
		slog.Debug("scheduled discovery done", "candidates", result.Candidates, "new", result.New)
	}); err != nil {
		return fmt.Errorf("invalid matching schedule %q: %w", cfg.Matching.Schedule, err)
	}
	reminderAge := time.Duration(cfg.Matching.ReminderAfterDays) * 24 * time.Hour
	if _, err := scheduler.AddFunc(cfg.Matching.ReminderSchedule, func() {
		sent, err := dispatcher.SendReminders(ctx, reminderAge)
		if err != nil {
			slog.Error("reminder sweep failed", "error", err)
			return
		}
		if sent > 0 {
			slog.Info("reminders sent", "count", sent)
		}
	}); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", cfg.Matching.ReminderSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  store,
		Engine: eng,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "refind listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildTransport picks the notification delivery mechanism. The returned
// cleanup closes the AMQP connection, and is nil for the log transport.
func buildTransport(cfg config.NotifyConfig) (notify.Transport, func(), error) {
	switch cfg.Transport {
	case "", "log":
		return &notify.LogTransport{}, nil, nil
	case "amqp":
		t, err := notify.NewAMQPTransport(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {
			if err := t.Close(); err != nil {
				slog.Warn("closing AMQP transport", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify transport %q (want log or amqp)", cfg.Transport)
	}
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
		printError("refind is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop refind (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to refind (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Notify transport", "%s", cfg.Notify.Transport)
	if cfg.Vision.BaseURL != "" {
		printStatus("Vision API", "%s", cfg.Vision.BaseURL)
	} else {
		printStatus("Vision API", "disabled")
	}
	printStatus("Discovery schedule", "%s", cfg.Matching.Schedule)

	if running {
		apiC, err := newAPIClient()
		if err == nil {
			statsResp, err := apiC.get(ctx, "/stats")
			if err == nil {
				var stats map[string]json.RawMessage
				if decodeJSON(statsResp, &stats) == nil {
					for _, key := range []string{"lost_items", "found_items", "pending_matches", "confirmed_matches"} {
						if v, ok := stats[key]; ok {
							printStatus(statLabel(key), "%s", string(v))
						}
					}
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func statLabel(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
