// Command cloudprime uploads files to a CloudPrime server with an API key.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/viper"
)

const (
	defaultServer  = "http://localhost:5000"
	defaultMaxSize = 100 * 1024 * 1024
)

// configKeys are the settings `config set` accepts.
var configKeys = []string{"server", "api_key", "timeout", "max_size", "parallel"}

func main() {
	v, err := newViper()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(v).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newViper loads the client configuration from the user config directory.
// A missing file is not an error; `config set` creates it.
func newViper() (*viper.Viper, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	return loadConfig(filepath.Join(dir, "cloudprime", "config.yaml"))
}

func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CLOUDPRIME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("server", defaultServer)
	v.SetDefault("timeout", "2m")
	v.SetDefault("max_size", defaultMaxSize)
	v.SetDefault("parallel", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

func isConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}
