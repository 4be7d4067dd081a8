// Package cli 提供 ellctl 命令行：离线导入、查询与记忆调试
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ell-intel-api/internal/config"
	"ell-intel-api/pkg/logger"
)

const (
	envAPIURL     = "ELL_API_URL"
	defaultAPIURL = "http://localhost:8000"
)

type rootOptions struct {
	configDir string
	apiURL    string
}

// NewRootCommand 构造 ellctl 根命令
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ellctl",
		Short:         "Command line tools for the ell intelligence API",
		Long:          `Load customer records into the vector store, run fused queries against the API and inspect long-term memories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", config.DefaultDir, "config directory containing config.yaml")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", apiURL, "base URL of the HTTP API (env "+envAPIURL+")")

	root.AddCommand(
		newIngestCommand(opts),
		newQueryCommand(opts),
		newMemoryCommand(opts),
		newCacheCommand(opts),
	)
	return root
}

// Execute 由 main 调用
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ellctl: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志（日志写 stderr，不污染命令输出）
func (o *rootOptions) loadConfig(stderr io.Writer) (*config.Config, error) {
	cfg, err := config.LoadFrom(o.configDir)
	if err != nil {
		return nil, err
	}
	logger.InitWithWriter(stderr, cfg.Observability.Logging.Level, "text")
	return cfg, nil
}
