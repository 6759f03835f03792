// Command prodmatchctl is the operator CLI for one-off matching runs and catalog index checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/app"
	"github.com/kailas-cloud/prodmatch/internal/config"
	logpkg "github.com/kailas-cloud/prodmatch/internal/logger"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
	"github.com/kailas-cloud/prodmatch/internal/repository/supplyfile"
	"github.com/kailas-cloud/prodmatch/internal/version"
)

type globalFlags struct {
	configPath string
	env        string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "prodmatchctl",
		Short:         "prodmatch operator CLI",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config yaml (default config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "environment name")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(newMatchCmd(g), newIndexCmd(g))
	return rootCmd
}

func newMatchCmd(g *globalFlags) *cobra.Command {
	var file, geohash string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "run the matching pipeline once over a supply list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := supplyfile.ReadFile(file)
			if err != nil {
				return err
			}
			if geohash != "" {
				req.SetGeohash(geohash)
			}
			if err := req.Validate(); err != nil {
				return err
			}

			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				products, report := a.Batch.GenerateProductsWithReport(ctx, req.Items, req.User)
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"products": products,
					"report":   report,
					"cache":    a.Embeddings.Stats(),
				})
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "supply list file, .json or .parquet (- for JSON on stdin)")
	cmd.Flags().StringVar(&geohash, "geohash", "", "buyer geohash, overrides the file's userContext")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newIndexCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "manage the product catalog index",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "create the catalog index or schema when missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				created, err := a.EnsureCatalog(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"driver":  a.Config.Catalog.Driver,
					"created": created,
				})
			})
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "report whether the catalog index exists and how many vectors it holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				info, err := indexInfo(ctx, a, a.Config)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}

	cmd.AddCommand(createCmd, infoCmd)
	return cmd
}

// catalogInspector is the read-only catalog surface of app.App.
type catalogInspector interface {
	CatalogExists(ctx context.Context) (bool, error)
	CatalogSize(ctx context.Context) (int64, error)
}

// indexInfo reports the catalog index state. vectors is the live count and is omitted when the index is missing.
func indexInfo(ctx context.Context, c catalogInspector, cfg config.Config) (map[string]any, error) {
	exists, err := c.CatalogExists(ctx)
	if err != nil {
		return nil, err
	}
	info := map[string]any{
		"driver":     cfg.Catalog.Driver,
		"index":      cfg.Catalog.IndexName,
		"exists":     exists,
		"dimensions": cfg.Embedding.Dimensions,
	}
	if exists {
		n, err := c.CatalogSize(ctx)
		if err != nil {
			return nil, err
		}
		info["vectors"] = n
	}
	return info, nil
}

// withApp loads config, wires the services, runs fn and tears everything down.
func withApp(ctx context.Context, g *globalFlags, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	logger, err := logpkg.NewLogger(g.env, g.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Register()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger.Error("Command failed", zap.Error(err))
		return err
	}
	return nil
}

func loadConfig(g *globalFlags) (config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load(g.env)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
