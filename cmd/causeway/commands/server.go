package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/causeway/internal/agents"
	"github.com/moolen/causeway/internal/apiserver"
	"github.com/moolen/causeway/internal/audit"
	"github.com/moolen/causeway/internal/causal"
	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/config"
	"github.com/moolen/causeway/internal/correlation"
	"github.com/moolen/causeway/internal/critic"
	"github.com/moolen/causeway/internal/diaggraph"
	"github.com/moolen/causeway/internal/lifecycle"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/memory"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
	"github.com/moolen/causeway/internal/session"
	"github.com/moolen/causeway/internal/synthesis"
	"github.com/moolen/causeway/internal/tools"
	"github.com/moolen/causeway/internal/topology"
	"github.com/moolen/causeway/internal/tracing"
)

var (
	apiPort      int
	dataDir      string
	profilesPath string
	kubeconfig   string
	platformName string
	llmModel     string
	queryTimeout time.Duration

	sessionTTL             time.Duration
	sessionCleanupInterval time.Duration
	topologyCacheTTL       time.Duration
	graphDeadline          time.Duration

	tracingEnabled     bool
	tracingEndpoint    string
	tracingTLSCAPath   string
	tracingTLSInsecure bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Causeway diagnosis server",
	Long: `Start the Causeway server which accepts diagnosis sessions over HTTP,
runs the supervisor workflow or the cluster diagnostic graph against the
configured collectors, and serves findings, evidence graphs and event streams.`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().IntVar(&apiPort, "api-port", 8080, "Port the API server listens on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "/var/lib/causeway", "Directory for the audit and incident memory databases")
	serverCmd.Flags().StringVar(&profilesPath, "profiles", "profiles.yaml", "Path to the collector profiles YAML file")
	serverCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to a kubeconfig file (empty: in-cluster config)")
	serverCmd.Flags().StringVar(&platformName, "platform", "kubernetes", "Cluster platform (kubernetes or openshift)")
	serverCmd.Flags().StringVar(&llmModel, "llm-model", "", "Override the default LLM model identifier")
	serverCmd.Flags().DurationVar(&queryTimeout, "query-timeout", 30*time.Second, "Timeout for individual collector queries")

	serverCmd.Flags().DurationVar(&sessionTTL, "session-ttl", config.DefaultSessionTTL, "Maximum session lifetime")
	serverCmd.Flags().DurationVar(&sessionCleanupInterval, "session-cleanup-interval", config.DefaultSessionCleanupInterval, "How often the session sweeper runs")
	serverCmd.Flags().DurationVar(&topologyCacheTTL, "topology-cache-ttl", config.DefaultTopologyCacheTTL, "How long topology snapshots stay cached")
	serverCmd.Flags().DurationVar(&graphDeadline, "graph-deadline", config.DefaultGraphDeadline, "Wall-clock ceiling for one diagnostic graph run")

	serverCmd.Flags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing (default: false)")
	serverCmd.Flags().StringVar(&tracingEndpoint, "tracing-endpoint", "", "OTLP gRPC endpoint for traces (e.g., otel-collector:4317)")
	serverCmd.Flags().StringVar(&tracingTLSCAPath, "tracing-tls-ca", "", "Path to CA certificate for TLS verification (optional)")
	serverCmd.Flags().BoolVar(&tracingTLSInsecure, "tracing-tls-insecure", false, "Skip TLS certificate verification (insecure, use only for testing)")
}

func runServer(cmd *cobra.Command, args []string) {
	defaultLevel, err := setupLog(logLevelFlags)
	HandleError(err, "Failed to setup logging")
	logger := logging.GetLogger("server")

	cfg := config.LoadConfig(apiPort, defaultLevel, dataDir, profilesPath)
	cfg.SessionTTL = sessionTTL
	cfg.SessionCleanupInterval = sessionCleanupInterval
	cfg.TopologyCacheTTL = topologyCacheTTL
	cfg.GraphDeadline = graphDeadline
	cfg.LLMModel = llmModel
	cfg.TracingEnabled = tracingEnabled
	cfg.TracingEndpoint = tracingEndpoint
	cfg.TracingTLSCAPath = tracingTLSCAPath
	HandleError(cfg.Validate(), "Configuration error")

	logger.Info("Starting Causeway v%s", Version)
	logger.Debug("Configuration loaded: APIPort=%d DataDir=%s", cfg.APIPort, cfg.DataDir)

	HandleError(os.MkdirAll(cfg.DataDir, 0o750), "Data directory error")

	// Cluster access is optional; without it the cluster intents report
	// themselves unconfigured and sessions still run on the remaining
	// collectors.
	cluster, err := collectors.NewClusterClientFromKubeconfig(kubeconfig)
	if err != nil {
		logger.Warn("no cluster access, cluster collectors disabled: %v", err)
		cluster = nil
	}

	profiles := loadProfiles(logger, cfg.ProfilesPath)
	opts := buildCollectors(cluster, profiles)

	llm, err := provider.NewAnthropicProvider(provider.Config{Model: cfg.LLMModel})
	HandleError(err, "LLM provider error")
	logger.Info("LLM provider ready: %s (%s)", llm.Name(), llm.Model())

	platform := models.Platform(platformName)
	resolver := topology.NewResolver(cluster, platform, cfg.TopologyCacheTTL)

	agentSet := make(map[models.Domain]*agents.Agent, len(diaggraph.GraphDomains))
	for _, domain := range diaggraph.GraphDomains {
		agentSet[domain] = agents.New(domain, platform, llm, cluster, opts.Prometheus, nil)
	}
	runner := diaggraph.NewRunner(resolver, correlation.NewCorrelator(),
		causal.NewFirewall(), agentSet, synthesis.New(llm), cfg.GraphDeadline)

	auditStore, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
	HandleError(err, "Audit store error")
	defer auditStore.Close()

	memStore, err := memory.Open(filepath.Join(cfg.DataDir, "memory.db"))
	HandleError(err, "Memory store error")
	defer memStore.Close()

	sessions := session.NewManager(session.Deps{
		LLM:             llm,
		Collectors:      opts,
		Runner:          runner,
		Critic:          critic.New(llm),
		Audit:           auditStore,
		Topology:        resolver,
		TTL:             cfg.SessionTTL,
		CleanupInterval: cfg.SessionCleanupInterval,
	})

	apiServer := apiserver.New(cfg.APIPort, sessions, memStore, tools.NewExecutor(opts), nil)

	manager := lifecycle.NewManager()

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		TLSCAPath:   cfg.TracingTLSCAPath,
		TLSInsecure: tracingTLSInsecure,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing (continuing without tracing): %v", err)
		tracingProvider = nil
	}
	if tracingProvider != nil {
		HandleError(manager.Register(tracingProvider), "Tracing registration error")
	}
	HandleError(manager.Register(sessions), "Session manager registration error")
	HandleError(manager.Register(apiServer, sessions), "API server registration error")

	ctx := context.Background()
	HandleError(manager.Start(ctx), "Startup error")

	// Hot reload of collector profiles; new sessions pick up the
	// rebuilt collector set, live sessions keep theirs.
	watcher := startProfilesWatcher(ctx, logger, cfg.ProfilesPath, cluster, sessions)
	if watcher != nil {
		defer watcher.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("Shutdown complete")
}

// loadProfiles reads the collector profiles file; a missing or invalid
// file degrades to cluster-only collection.
func loadProfiles(logger *logging.Logger, path string) *config.ProfilesFile {
	profiles, err := config.LoadProfilesFile(path)
	if err != nil {
		logger.Warn("collector profiles not loaded, continuing with cluster-only collection: %v", err)
		return nil
	}
	logger.Info("Loaded %d collector profiles (%d enabled)", len(profiles.Profiles), len(profiles.EnabledProfiles()))
	return profiles
}

// buildCollectors materializes collector clients from the enabled
// profiles. Token resolution happens here and nowhere else.
func buildCollectors(cluster *collectors.ClusterClient, profiles *config.ProfilesFile) tools.Options {
	opts := tools.Options{Cluster: cluster}
	if profiles == nil {
		return opts
	}
	for _, p := range profiles.EnabledProfiles() {
		resolved := config.ResolveProfile(p)
		switch p.Type {
		case config.CollectorPrometheus:
			opts.Prometheus = collectors.NewPrometheusClient(resolved, queryTimeout)
		case config.CollectorLogIndex:
			opts.LogIndex = collectors.NewLogIndexClient(resolved, queryTimeout)
		case config.CollectorTracing:
			opts.Tracing = collectors.NewTracingClient(resolved, queryTimeout)
		case config.CollectorSourceHost:
			opts.SourceHost = collectors.NewSourceHostClient(resolved, queryTimeout)
		}
	}
	return opts
}

func startProfilesWatcher(ctx context.Context, logger *logging.Logger, path string,
	cluster *collectors.ClusterClient, sessions *session.Manager) *config.Watcher {
	watcher, err := config.NewWatcher(config.WatcherConfig{FilePath: path}, func(profiles *config.ProfilesFile) error {
		sessions.SetCollectors(buildCollectors(cluster, profiles))
		logger.Info("collector profiles reloaded")
		return nil
	})
	if err != nil {
		logger.Warn("profiles watcher not started: %v", err)
		return nil
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("profiles watcher failed to start: %v", err)
		return nil
	}
	return watcher
}
