package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/mattiatonolo-png/nutri-ai-assistant/config"
	"github.com/mattiatonolo-png/nutri-ai-assistant/controller"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/services"
)

var (
	configFiles []string
	logLevel    string
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "nutri-ai",
	Short:         "Clinical diet assistant grounded on a reference library",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFiles...)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		setupLogger(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "TOML config file (repeatable, later files win)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	indexCmd.Flags().Bool("rebuild", false, "re-embed the library even when a usable index exists")
	searchCmd.Flags().IntP("top-k", "k", services.DefaultTopK, "number of passages to return")
	matchCmd.Flags().Float64P("grams", "g", models.DefaultGrams, "portion to scale the nutrients to")

	rootCmd.AddCommand(serveCmd, indexCmd, searchCmd, matchCmd)
}

func setupLogger(lc config.LoggingConfig) {
	logger := log.Logger{
		Level:      log.ParseLevel(lc.Level),
		TimeFormat: "15:04:05",
	}
	if strings.EqualFold(lc.Format, "json") {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	} else {
		logger.Writer = &log.ConsoleWriter{ColorOutput: true, QuoteString: true, EndWithMessage: true}
	}
	log.DefaultLogger = logger
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg)
	defer a.Close()

	kb, err := a.KnowledgeBase(ctx)
	if err != nil {
		return err
	}
	if _, err := kb.Load(ctx); err != nil {
		log.Error().Err(err).Msg("reference library could not be loaded, chat runs without reference passages")
	}
	if cfg.Corpus.Watch {
		w, err := services.NewCorpusWatcher(cfg.Corpus.Dir, kb)
		if err != nil {
			log.Warn().Err(err).Msg("library watcher not started")
		} else {
			go w.Run(ctx)
		}
	}

	sessions, err := a.Sessions()
	if err != nil {
		return err
	}
	generator, err := a.Generator(ctx)
	if err != nil {
		return err
	}
	planner, err := a.Planner(generator)
	if err != nil {
		return err
	}
	chat := services.NewChatService(sessions, kb, generator, cfg.Index.TopK)
	api := controller.NewController(kb, sessions, chat, planner, cfg.Index.TopK)

	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "Nutri-AI API",
			"index":   kb.Report().Status,
		})
	})
	api.Register(router.Group("/api/v1"))

	srv := &http.Server{Addr: cfg.Server.Address(), Handler: router}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", srv.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load the reference index, building it when needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp(cfg)
		defer a.Close()

		kb, err := a.KnowledgeBase(ctx)
		if err != nil {
			return err
		}
		rebuild, _ := cmd.Flags().GetBool("rebuild")
		var report services.IndexReport
		if rebuild {
			report, err = kb.Rebuild(ctx)
		} else {
			report, err = kb.Load(ctx)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the library passages closest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := newApp(cfg)
		defer a.Close()

		kb, err := a.KnowledgeBase(ctx)
		if err != nil {
			return err
		}
		if _, err := kb.Load(ctx); err != nil {
			return err
		}
		k, _ := cmd.Flags().GetInt("top-k")
		query := strings.Join(args, " ")
		passages, err := kb.Retrieve(ctx, query, k)
		if err != nil {
			return err
		}
		if passages == nil {
			passages = []models.RetrievedPassage{}
		}
		return printJSON(cmd, models.SearchResponse{Query: query, Passages: passages})
	},
}

var matchCmd = &cobra.Command{
	Use:   "match <food>",
	Short: "Resolve a food description against the nutrient table",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		matcher, err := a.Matcher()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		rec, ok := matcher.Match(query)
		if !ok {
			return fmt.Errorf("%w: %q", services.ErrFoodNotFound, query)
		}
		grams, _ := cmd.Flags().GetFloat64("grams")
		return printJSON(cmd, gin.H{
			"query":        query,
			"match":        services.FoodLabel(rec),
			"grams":        grams,
			"contribution": services.Scale(rec, grams).Rounded(),
		})
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
