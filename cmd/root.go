// Package cmd defines and implements the CLI commands for the catalogcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/app"
	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
	"github.com/JakeFAU/steam-catalog-crawler/internal/crawler"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const (
	appKey   appKeyType = "app"
	builtKey appKeyType = "built"
)

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Store() catalog.Store
	Synchronizer() *crawler.Synchronizer
	NewEngine(cfg crawler.Config) (*crawler.Engine, error)
	ServeAPI(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, configPath string) (App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogcrawler",
		Short: "Builds a local index of the games in a remote software catalog.",
		Long: `catalogcrawler downloads the full catalog listing, then visits each entry's
detail endpoint one at a time to decide whether it is a game. Progress is kept in
a local database so an interrupted crawl resumes where it stopped, and the crawl
backs off for a long cooldown when the remote service starts rate limiting.`,
		SilenceUsage: true,

		// Build the application once config flags are parsed and before the
		// subcommand's RunE. runRoot closes it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if slot, ok := cmd.Context().Value(builtKey).(*App); ok {
				*slot = appInstance
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(
		newCrawlCmd(),
		newSyncCmd(),
		newStatsCmd(),
		newResetCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context, which lets a running crawl finish its in-flight item and exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := runRoot(ctx, newRootCmd())
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runRoot executes root and closes the application it built. cobra skips
// PersistentPostRun when RunE fails, so the close happens here instead.
func runRoot(ctx context.Context, root *cobra.Command) error {
	var built App
	err := root.ExecuteContext(context.WithValue(ctx, builtKey, &built))
	if built != nil {
		built.Close()
	}
	return err
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
