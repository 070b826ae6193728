// Package cli implements the finctl command-line interface.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weiawesome/fin-dashboard/internal/api"
	"github.com/weiawesome/fin-dashboard/internal/cache"
	"github.com/weiawesome/fin-dashboard/internal/config"
	pkglog "github.com/weiawesome/fin-dashboard/pkg/log"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	verbose    bool
	jsonOut    bool
	noColor    bool

	cfg    *config.Config
	store  cache.Store
	cache  *cache.ExpiringCache
	client *api.Client
}

// NewRootCommand builds the finctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "finctl",
		Short:         "finctl: finance dashboard client",
		Long:          `A command-line client for the finance dashboard: cached reports, transactions and team chat.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file, or directory containing config.yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose debug output to stderr")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Emit JSON instead of tables")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newCacheCommand(a),
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newTxCommand(a),
		newSummaryCommand(a),
		newCategoryCommand(a),
		newChatCommand(a),
	)
	return root
}

// Execute runs finctl and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) setup() error {
	if a.noColor || a.jsonOut {
		color.NoColor = true
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	pkglog.Init(pkglog.Config{Level: level, Pretty: cfg.Log.Pretty, ServiceName: "finctl"})

	store, err := cache.OpenStore(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	a.store = store

	var opts []cache.Option
	if cfg.Cache.Namespace != "" {
		opts = append(opts, cache.WithNamespace(cfg.Cache.Namespace))
	}
	a.cache = cache.New(store, opts...)
	logger := pkglog.L().With().Str("component", "api").Logger()
	a.client = api.New(cfg.API.BaseURL, a.cache,
		api.WithTokenStore(store),
		api.WithLogger(logger),
		api.WithHTTPClient(&http.Client{
			Timeout:   cfg.API.Timeout,
			Transport: pkglog.NewRoundTripper(http.DefaultTransport, logger),
		}),
	)
	return nil
}

func (a *app) close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
