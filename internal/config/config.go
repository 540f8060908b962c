// Package config provides functionality for managing configuration options
// for the application using command-line flags, environment variables and
// an optional JSON config file.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the client.
type Options struct {
	// ServerURL is the base URL of the election backend.
	ServerURL string

	// SessionFile is the path of the persisted session snapshot.
	SessionFile string

	// ReceiptDir is the directory exported receipts are written to.
	ReceiptDir string

	// LogLevel is the zap log level name.
	LogLevel string

	// Config is the path to the config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.ServerURL, "url", "http://localhost:8080", "backend base URL")
	flag.StringVar(&options.SessionFile, "session", "session.json", "path to the session file")
	flag.StringVar(&options.ReceiptDir, "receipts", "receipts", "directory for exported receipts")
	flag.StringVar(&options.LogLevel, "log", "Info", "log level")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags, the optional .env and config files,
// and environment variables. Precedence, lowest to highest: config file,
// flags, environment.
func Parse() *Options {
	// Missing .env is fine; values it sets are picked up below.
	_ = godotenv.Load()

	flag.Parse()

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverURL := os.Getenv("SERVER_URL"); serverURL != "" {
		options.ServerURL = serverURL
	}
	if sessionFile := os.Getenv("SESSION_FILE"); sessionFile != "" {
		options.SessionFile = sessionFile
	}
	if receiptDir := os.Getenv("RECEIPT_DIR"); receiptDir != "" {
		options.ReceiptDir = receiptDir
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		options.LogLevel = logLevel
	}

	return options
}
