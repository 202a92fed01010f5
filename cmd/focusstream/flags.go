package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("FOCUSSTREAM_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: FOCUSSTREAM_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("FOCUSSTREAM_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FOCUSSTREAM_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FOCUSSTREAM_LOG_FORMAT", "json"),
		"Log format: json, text (env: FOCUSSTREAM_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FOCUSSTREAM_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FOCUSSTREAM_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.Validate, "validate", false,
		"Validate configuration and exit")

	flag.BoolVar(&cfg.ShowVersion, "version", false,
		"Show version and exit")

	flag.BoolVar(&cfg.ShowHelp, "help", false,
		"Show help and exit")

	flag.Parse()
	return cfg
}

func printHelp() {
	fmt.Printf("%s - distraction detection event stream pipeline\n\n", appName)
	fmt.Println("Usage:")
	fmt.Printf("  %s [flags]\n\n", appName)
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
