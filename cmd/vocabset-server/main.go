package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vocabset/vocabset/internal/config"
	"github.com/vocabset/vocabset/internal/domain/concept"
	"github.com/vocabset/vocabset/internal/domain/conceptset"
	"github.com/vocabset/vocabset/internal/domain/valueset"
	"github.com/vocabset/vocabset/internal/platform/auth"
	"github.com/vocabset/vocabset/internal/platform/db"
	"github.com/vocabset/vocabset/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vocabset-server",
		Short: "OMOP vocabulary ValueSet API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ValueSet API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// exportCmd builds a value set straight from the database and writes it to a
// file, for batch pipelines that do not want to stand up the HTTP server.
func exportCmd() *cobra.Command {
	var (
		name          string
		id            string
		status        string
		description   string
		term          string
		vocabulary    string
		fuzzy         bool
		threshold     int
		seeds         []int64
		maxSeparation int
		format        string
		out           string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Build a value set and write it to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if term == "" && len(seeds) == 0 {
				return fmt.Errorf("at least one of --term or --seed is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
			store := concept.NewStore(concept.NewRepoPG(pool), logger)
			resolver := conceptset.NewService(store)
			assembler := valueset.NewService(store)

			set := conceptset.New()
			if term != "" {
				searched, err := resolver.ResolveSearch(ctx, term, vocabulary, concept.SearchOptions{
					Fuzzy:     fuzzy,
					Threshold: threshold,
				})
				if err != nil {
					return err
				}
				set = conceptset.Merge(set, searched)
			}
			if len(seeds) > 0 {
				descendants, missing, err := resolver.ResolveDescendants(ctx, seeds, maxSeparation)
				if err != nil {
					return err
				}
				if len(missing) > 0 {
					fmt.Fprintf(os.Stderr, "warning: seeds not found: %v\n", missing)
				}
				set = conceptset.Merge(set, descendants)
			}

			exp, err := assembler.Assemble(ctx, set, valueset.Metadata{
				ID:          id,
				Name:        name,
				Status:      status,
				Description: description,
			})
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			switch strings.ToLower(format) {
			case "json":
				enc := json.NewEncoder(f)
				enc.SetIndent("", "  ")
				if err := enc.Encode(valueset.FHIRDocument(exp)); err != nil {
					return err
				}
			case "csv":
				if err := valueset.WriteCSV(f, exp); err != nil {
					return err
				}
			case "xlsx":
				if err := valueset.WriteWorkbook(f, exp); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want json, csv, or xlsx)", format)
			}

			fmt.Printf("Wrote %d member(s) to %s\n", len(exp.Members), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Value set name (required)")
	cmd.Flags().StringVar(&id, "id", "", "Value set id (default: generated)")
	cmd.Flags().StringVar(&status, "status", "", "Value set status: draft or active (default: draft)")
	cmd.Flags().StringVar(&description, "description", "", "Value set description")
	cmd.Flags().StringVar(&term, "term", "", "Concept name search term")
	cmd.Flags().StringVar(&vocabulary, "vocabulary", "", "Restrict search to one vocabulary")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "Use fuzzy name matching")
	cmd.Flags().IntVar(&threshold, "threshold", concept.DefaultFuzzyThreshold, "Fuzzy match threshold (50-100)")
	cmd.Flags().Int64SliceVar(&seeds, "seed", nil, "Seed concept id to expand (repeatable)")
	cmd.Flags().IntVar(&maxSeparation, "max-separation", -1, "Maximum levels of separation (-1 for unlimited)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json, csv, or xlsx")
	cmd.Flags().StringVar(&out, "out", "valueset.json", "Output file path")

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Timeout(cfg.Timeout()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth mode active, all requests get admin access")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	// Concept store with optional closure cache
	store := concept.NewStore(concept.NewRepoPG(pool), logger)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, closure caching disabled")
		} else {
			store.SetClosureCache(concept.NewClosureCache(rdb, cfg.ClosureTTL(), logger))
			logger.Info().Msg("closure caching enabled")
		}
	}

	resolver := conceptset.NewService(store)
	assembler := valueset.NewService(store)

	// API groups
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")

	conceptHandler := concept.NewHandler(store, cfg.SearchLimit)
	conceptHandler.RegisterRoutes(apiV1)

	valuesetHandler := valueset.NewHandler(resolver, assembler)
	valuesetHandler.RegisterRoutes(apiV1, fhirGroup)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
