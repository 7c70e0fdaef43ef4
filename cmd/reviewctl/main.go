package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mabgcm/turkiyedental2-sub001/internal/app"
	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/config"
	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/migrations"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "reviewctl",
		Short:         "Operate the clinic review service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(recomputeAllCmd())
	rootCmd.AddCommand(clinicsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(app.ServiceName, cfg.LogLevel), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			application, err := app.NewApp(cfg, log)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return application.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the configured store",
		Long:  "Applies pending PostgreSQL migrations, or creates the MongoDB indexes when STORE_DRIVER=mongo.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stores, err := app.OpenStores(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close(context.Background()) }()

			fmt.Printf("%s store is up to date.\n", stores.Driver)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the embedded PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := database.MigrationFiles(migrations.FS)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	})

	return cmd
}

// withApp builds the full application, without serving HTTP, for commands
// that must lock and publish exactly like the server does.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}

	a, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close application", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, a)
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <clinic-id>",
		Short: "Rebuild one clinic rating from its approved reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Engine().Recompute(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s: avg_rating=%g review_count=%d\n", args[0], stats.AvgRating, stats.ReviewCount)
				return nil
			})
		},
	}
}

func recomputeAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-all",
		Short: "Rebuild every clinic rating",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				results, err := a.Engine().RecomputeAll(ctx)

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CLINIC\tAVG\tREVIEWS\tRESULT")
				for _, r := range results {
					outcome := "ok"
					if r.Err != nil {
						outcome = r.Err.Error()
					}
					fmt.Fprintf(tw, "%s\t%g\t%d\t%s\n", r.ClinicID, r.Stats.AvgRating, r.Stats.ReviewCount, outcome)
				}
				if flushErr := tw.Flush(); flushErr != nil {
					return flushErr
				}
				return err
			})
		},
	}
}

func clinicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinics",
		Short: "Inspect clinics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clinics with their stored rating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			stores, err := app.OpenStores(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close(context.Background()) }()

			clinics, err := stores.Clinics.List(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCITY\tRATING\tREVIEWS\tUPDATED")
			for _, c := range clinics {
				updated := "never"
				if c.RatingsUpdatedAt != nil {
					updated = c.RatingsUpdatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\t%s\n",
					c.ID, c.Name, c.City, domain.RoundRating(c.AvgRating), c.ReviewCount, updated)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			token, err := auth.NewJWTVerifier(cfg.JWTSecret).Sign(args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
