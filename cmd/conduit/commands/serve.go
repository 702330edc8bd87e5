package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-ai/conduit/internal/codeexec"
	"github.com/conduit-ai/conduit/internal/config"
	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/logging"
	"github.com/conduit-ai/conduit/internal/mcp"
	"github.com/conduit-ai/conduit/internal/message"
	"github.com/conduit-ai/conduit/internal/provider"
	"github.com/conduit-ai/conduit/internal/server"
	"github.com/conduit-ai/conduit/internal/session"
	"github.com/conduit-ai/conduit/internal/storage"
	"github.com/conduit-ai/conduit/internal/tool"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conduit server",
	Long: `Start the conduit HTTP server: REST endpoints to launch and stop
completions, an SSE stream for realtime events, and the direct-tool
result callback.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(level)
	logCfg.Pretty = true
	logCfg.LogToFile = cfg.LogToFile || logToFile
	logging.Init(logCfg)
	defer logging.Close()

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = paths.StoragePath()
	}
	store := storage.New(dataDir)

	bus := event.NewBus()
	defer bus.Close()

	ctx := context.Background()
	settings := make(map[string]provider.Settings, len(cfg.Provider))
	for id, pc := range cfg.Provider {
		if pc.Disabled {
			continue
		}
		settings[id] = provider.Settings{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		}
	}
	providers, err := provider.Initialize(ctx, settings, cfg.Model)
	if err != nil {
		return err
	}

	tools := tool.DefaultRegistry()
	direct := tool.NewDirect(bus, cfg.DirectToolTimeout())

	if cfg.WebFetch != nil && len(cfg.WebFetch.AllowedHosts) > 0 {
		tools.Register(tool.NewWebFetchToolWithAllowlist(cfg.WebFetch.AllowedHosts))
	}

	var mcpClient *mcp.Client
	if len(cfg.MCP) > 0 {
		mcpClient = mcp.NewClient(logging.With().Logger())
		defer mcpClient.Close()
		for name, serverCfg := range cfg.MCP {
			if err := mcpClient.Connect(ctx, name, serverCfg); err != nil {
				logging.Warn().Err(err).Str("server", name).Msg("mcp server unavailable")
			}
		}
		mcp.RegisterTools(mcpClient, tools)
	}

	tagSpecs, err := config.LoadTagSpecs(cfg.TagsFile)
	if err != nil {
		return err
	}
	classifier := message.NewClassifier(tagSpecs)

	var executor codeexec.Executor
	var images *codeexec.ImageCache
	codeEnabled := cfg.Code != nil && cfg.Code.Enabled && cfg.Code.Gateway != ""
	if codeEnabled {
		executor = codeexec.NewRemoteExecutor(cfg.Code.Gateway, cfg.CodeTimeout())
		images = codeexec.NewImageCache(paths.ImageCachePath(), "/cache/images")
	}

	supervisor := session.NewSupervisor(session.SupervisorOptions{
		Store:      store,
		Bus:        bus,
		Tools:      tools,
		Direct:     direct,
		Executor:   executor,
		Images:     images,
		Classifier: classifier,
	})

	// Edits to the tag-set file take effect for sessions started after
	// the save; running sessions keep their classifier.
	if cfg.TagsFile != "" {
		watcher, err := config.NewFileWatcher(cfg.TagsFile, func() {
			specs, err := config.LoadTagSpecs(cfg.TagsFile)
			if err != nil {
				logging.Error().Err(err).Str("path", cfg.TagsFile).Msg("tag set reload failed")
				return
			}
			supervisor.SetClassifier(message.NewClassifier(specs))
			logging.Info().Int("tags", len(specs)).Msg("tag sets reloaded")
		})
		if err != nil {
			logging.Warn().Err(err).Msg("tag set watcher unavailable")
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	serverCfg := server.DefaultConfig()
	if hostname := serveHostname; hostname != "" {
		serverCfg.Host = hostname
	} else if cfg.Server != nil && cfg.Server.Host != "" {
		serverCfg.Host = cfg.Server.Host
	}
	if servePort != 0 {
		serverCfg.Port = servePort
	} else if cfg.Server != nil && cfg.Server.Port != 0 {
		serverCfg.Port = cfg.Server.Port
	}
	serverCfg.DefaultModel = cfg.Model
	serverCfg.TaskModel = cfg.TaskModel
	serverCfg.Policy = session.PersistencePolicy(cfg.Policy)
	serverCfg.CodeEnabled = codeEnabled
	serverCfg.EnableTagGeneration = cfg.EnableTags
	serverCfg.TagSets = cfg.TagSets

	srv := server.New(serverCfg, server.Options{
		Store:      store,
		Bus:        bus,
		Providers:  providers,
		Tools:      tools,
		Direct:     direct,
		Supervisor: supervisor,
		Images:     images,
	})

	go func() {
		logging.Info().
			Str("host", serverCfg.Host).
			Int("port", serverCfg.Port).
			Str("version", Version).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
