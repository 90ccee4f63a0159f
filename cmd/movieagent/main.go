package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"movieagent/api"
	"movieagent/config"
	"movieagent/handlers"
	"movieagent/models"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// serve flags
	listenAddr string

	// query flags
	queryType     string
	queryWeekly   bool
	queryPage     int
	queryPageSize int
)

var rootCmd = &cobra.Command{
	Use:   "movieagent",
	Short: "Movie and OTT discovery backend",
	Long: `movieagent answers free-text movie and OTT questions such as "Stree 2" or
"top Netflix movies this week" by combining TMDB, OMDb, web search and
language models into one JSON response.

API keys are read from the environment (or a .env file next to the settings
file): TMDB_API_KEY, OMDB_API_KEY, TAVILY_API_KEY, SERPAPI_KEY,
PERPLEXITY_API_KEY and GEMINI_API_KEY.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Resolve one query and print the JSON envelope",
	Example: `  movieagent query "Stree 2"
  movieagent query "top thriller series on Netflix" --type tv --page 2
  movieagent query --weekly`,
	RunE: runQuery,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), handlers.BackendVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "settings file (YAML, optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides server.addr)")

	queryCmd.Flags().StringVarP(&queryType, "type", "t", "movie", "movie or tv")
	queryCmd.Flags().BoolVar(&queryWeekly, "weekly", false, "list this week's releases")
	queryCmd.Flags().IntVar(&queryPage, "page", 1, "page number for list results")
	queryCmd.Flags().IntVar(&queryPageSize, "page-size", 0, "page size for list results")

	rootCmd.AddCommand(serveCmd, queryCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}
	logger, closeLogs := setupLogging(cfg.Logging)
	defer closeLogs()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg)
	limiter := api.NewIPRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)
	defer limiter.Close()

	return serve(ctx, cfg.Server.Addr, newHandler(a, limiter, logger))
}

func runQuery(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" && !queryWeekly {
		return fmt.Errorf("a query is required unless --weekly is set")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, closeLogs := setupLogging(cfg.Logging)
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newApp(ctx, cfg)
	env, err := a.pipeline.Resolve(ctx, models.Query{
		Text:     text,
		Type:     models.ParseMediaType(queryType),
		Weekly:   queryWeekly,
		Page:     queryPage,
		PageSize: queryPageSize,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
