package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moolen/causeway/internal/logging"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
)

var rootCmd = &cobra.Command{
	Use:   "causeway",
	Short: "Causeway - Autonomous Incident Diagnosis for Containerized Services",
	Long: `Causeway runs diagnosis sessions against a live cluster: it collects
evidence through metric, log, trace and cluster collectors, builds a causal
evidence graph, and reports root cause candidates with confidence scores.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level session.manager=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for the default, or 'package.name=level' per package.\n"+
			"Examples: --log-level debug (all), --log-level diaggraph=debug --log-level tools=warn")

	rootCmd.AddCommand(serverCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// setupLog initializes logging from the parsed log level flags and
// returns the default level so it can land in the engine config.
// Priority: CLI flags > environment variables.
func setupLog(flags []string) (string, error) {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return "", err
	}
	if err := logging.Initialize(defaultLevel, packageLevels); err != nil {
		return "", err
	}
	return defaultLevel, nil
}

// parseLogLevelFlags merges CLI flags over LOG_LEVEL_* environment
// variables. CLI format: ["debug"], or ["default=info", "diaggraph=debug"].
// Env format: LOG_LEVEL_SESSION_MANAGER=debug -> session.manager.
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[convertEnvKeyToPackageName(parts[0])] = parts[1]
	}

	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			result["default"] = flag
			continue
		}
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_SESSION_MANAGER -> session.manager
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

func validateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}
