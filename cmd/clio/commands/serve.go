package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clio-agent/clio/internal/broker"
	"github.com/clio-agent/clio/internal/config"
	"github.com/clio-agent/clio/internal/logging"
	"github.com/clio-agent/clio/internal/mcp"
	"github.com/clio-agent/clio/internal/provider"
	"github.com/clio-agent/clio/internal/session"
	"github.com/clio-agent/clio/internal/statusserver"
	"github.com/clio-agent/clio/internal/storage"
	"github.com/clio-agent/clio/internal/tool"
	"github.com/spf13/cobra"
)

var (
	servePort        int
	serveHostname    string
	serveDir         string
	serveMaxAPI      int
	serveTargetQuota float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination broker and status introspection surface",
	Long: `Start the headless coordination broker (spec §4.4/§6) that serializes
file locks, the git lock, and outbound provider API slots across worker
clio run processes, alongside a slim HTTP surface (GET /status,
GET /sessions/{id}) used by clio status.

This process does not itself drive any session's agent loop; use
clio run for that. Worker processes dial the broker's socket to
coordinate with each other while each runs its own orchestrator.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 4096, "Status HTTP surface port")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to report in logs")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().IntVar(&serveMaxAPI, "max-parallel-api", 4, "Maximum concurrent provider API calls the broker admits")
	serveCmd.Flags().Float64Var(&serveTargetQuota, "target-quota", 0.8, "Fraction of the provider's rate-limit window the broker targets before throttling")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("Starting clio broker")
	logging.Info().Str("directory", workDir).Msg("Working directory")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if model := GetGlobalModel(); model != "" {
		appConfig.Model = model
	}

	store := storage.New(paths.StoragePath())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to initialize some providers")
	}

	toolReg := tool.DefaultRegistry(workDir, store)

	mcpClient := mcp.NewClient()
	for name, cfg := range appConfig.MCP {
		enabled := cfg.Enabled == nil || *cfg.Enabled
		if !enabled {
			continue
		}
		mcpCfg := &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(cfg.Type),
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Command:     cfg.Command,
			Environment: cfg.Environment,
			Timeout:     cfg.Timeout,
		}
		if err := mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("Failed to connect MCP server")
			continue
		}
	}
	if mcpClient.ConnectedCount() > 0 {
		mcp.RegisterMCPTools(mcpClient, toolReg)
		logging.Info().Int("mcpToolCount", len(mcpClient.Tools())).Msg("Registered MCP tools in tool registry")
	}

	sessionService := session.NewServiceWithProcessor(store, providerReg, toolReg, nil, "", "")

	sockAddr := paths.BrokerSocketPath()
	os.Remove(sockAddr) // a prior unclean shutdown can leave a stale socket file behind
	brokerSrv, err := broker.NewServer(sockAddr, serveMaxAPI, serveTargetQuota)
	if err != nil {
		return fmt.Errorf("failed to bind broker socket %s: %w", sockAddr, err)
	}
	go func() {
		if err := brokerSrv.Run(ctx); err != nil {
			logging.Error().Err(err).Msg("Broker server stopped")
		}
	}()

	brokerClient, err := broker.Dial(ctx, sockAddr, "statusserver")
	if err != nil {
		logging.Warn().Err(err).Msg("Status surface could not dial its own broker; /status will report disconnected")
		brokerClient = nil
	}

	statusCfg := statusserver.DefaultConfig()
	statusCfg.Port = servePort
	statusSrv := statusserver.New(statusCfg, sessionService, brokerClient)

	go func() {
		logging.Info().
			Str("hostname", serveHostname).
			Int("port", servePort).
			Str("url", fmt.Sprintf("http://%s:%d", serveHostname, servePort)).
			Str("brokerSocket", sockAddr).
			Msg("Broker and status surface listening")
		if err := statusSrv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Error().Err(err).Msg("Status server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("Shutting down...")
	cancel()

	if brokerClient != nil {
		_ = brokerClient.Close()
	}
	if err := mcpClient.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing MCP servers")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := statusSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Status server shutdown error")
	}
	if err := brokerSrv.Close(); err != nil {
		logging.Warn().Err(err).Msg("Broker socket close error")
	}

	logging.Info().Msg("Stopped")
	return nil
}
