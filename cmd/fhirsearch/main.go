package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/fhirsearch/internal/config"
	"github.com/ehr/fhirsearch/internal/platform/fhir"
	"github.com/ehr/fhirsearch/internal/platform/fhirtypes"
	"github.com/ehr/fhirsearch/internal/platform/filter"
	"github.com/ehr/fhirsearch/internal/platform/middleware"
	"github.com/ehr/fhirsearch/internal/platform/mongostore"
	"github.com/ehr/fhirsearch/internal/platform/searchparam"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fhirsearch",
		Short:         "Compile FHIR search parameters into document store filters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(paramsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the search HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func compileCmd() *cobra.Command {
	var (
		resourceType string
		pairs        []string
		asJSON       bool
		canonical    bool
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile search arguments and print the filter",
		Example: `  fhirsearch compile --resource Patient --arg birthdate=ge2020 --arg gender=male
  fhirsearch compile --resource Observation --arg code:not=1234-5 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			compiler, err := buildCompiler(cfg, logger)
			if err != nil {
				return err
			}
			args, err := parseArgPairs(pairs)
			if err != nil {
				return err
			}
			q, err := compiler.Compile(resourceType, args)
			if err != nil {
				return err
			}
			return printQuery(cmd.OutOrStdout(), q, asJSON, canonical)
		},
	}
	cmd.Flags().StringVarP(&resourceType, "resource", "r", "", "resource type to search, e.g. Patient")
	cmd.Flags().StringArrayVarP(&pairs, "arg", "a", nil, "search argument as name=value; repeat for lists")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the filter as extended JSON with its hints")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "use canonical extended JSON (implies --json)")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func paramsCmd() *cobra.Command {
	var resourceType string
	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the search parameters registered for a resource type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg, logger)
			if err != nil {
				return err
			}
			if resourceType == "" {
				for _, rt := range reg.ResourceTypes() {
					fmt.Fprintln(cmd.OutOrStdout(), rt)
				}
				return nil
			}
			if !reg.Has(resourceType) {
				return fmt.Errorf("resource type %q has no registered search parameters", resourceType)
			}
			return printParams(cmd.OutOrStdout(), reg.ForResource(resourceType))
		},
	}
	cmd.Flags().StringVarP(&resourceType, "resource", "r", "", "resource type; lists resource types when empty")
	return cmd
}

// setup loads and validates configuration and builds the process logger.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	level, _ := cfg.Level()

	var out io.Writer = os.Stderr
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return cfg, logger, nil
}

func loadRegistry(cfg *config.Config, logger zerolog.Logger) (*searchparam.Registry, error) {
	if cfg.RegistryFile == "" {
		return searchparam.Default()
	}
	reg, err := searchparam.LoadFile(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("file", cfg.RegistryFile).Int("resource_types", len(reg.ResourceTypes())).Msg("loaded search parameter registry")
	return reg, nil
}

func loadResolver(cfg *config.Config, logger zerolog.Logger) (*fhirtypes.Resolver, error) {
	if cfg.StructureDefinitionsFile == "" {
		return fhirtypes.NewResolver(nil), nil
	}
	f, err := os.Open(cfg.StructureDefinitionsFile)
	if err != nil {
		return nil, fmt.Errorf("open structure definitions: %w", err)
	}
	defer f.Close()

	extra, err := fhirtypes.LoadStructureDefinitions(f)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("file", cfg.StructureDefinitionsFile).Int("elements", len(extra)).Msg("loaded structure definitions")
	return fhirtypes.NewResolver(extra), nil
}

// buildCompiler wires the registry, the field type resolver and the
// configured compile options.
func buildCompiler(cfg *config.Config, logger zerolog.Logger) (*fhir.Compiler, error) {
	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	types, err := loadResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []fhir.Option{
		fhir.WithLogger(logger),
		fhir.WithNativeDateFields(cfg.NativeDateFields...),
	}
	if access := cfg.AccessIndex(); access != nil {
		opts = append(opts, fhir.WithAccessIndex(access))
	}
	if len(cfg.AccessSystems) > 0 {
		opts = append(opts, fhir.WithAccessSystems(cfg.AccessSystems...))
	}
	return fhir.NewCompiler(reg, types, opts...)
}

// parseArgPairs turns name=value pairs into compiler arguments. A name
// given more than once becomes a list.
func parseArgPairs(pairs []string) (fhir.Args, error) {
	grouped := make(map[string][]string)
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("argument %q is not of the form name=value", p)
		}
		name = strings.TrimSpace(name)
		grouped[name] = append(grouped[name], value)
	}
	return fhir.ArgsFromValues(grouped), nil
}

func printQuery(w io.Writer, q *fhir.CompiledQuery, asJSON, canonical bool) error {
	if !asJSON && !canonical {
		fmt.Fprintf(w, "%s\n", q.Filter)
		if cols := q.Columns(); len(cols) > 0 {
			fmt.Fprintf(w, "hints: %s\n", strings.Join(cols, ", "))
		}
		return nil
	}
	doc, err := filter.MarshalExtJSON(q.Filter, canonical)
	if err != nil {
		return err
	}
	cols := q.Columns()
	if cols == nil {
		cols = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fhir.CompileResponse{ResourceType: q.ResourceType, Filter: doc, Hints: cols})
}

func printParams(w io.Writer, defs []*searchparam.Definition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tPATHS\tTARGET")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Type, strings.Join(d.Paths(), ","), strings.Join(d.Target, ","))
	}
	return tw.Flush()
}

func runServer() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	compiler, err := buildCompiler(cfg, logger)
	if err != nil {
		return fmt.Errorf("build compiler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store
	var store *mongostore.Store
	if cfg.SearchEnabled() {
		client, err := mongostore.Connect(ctx, cfg.MongoURL, cfg.MongoTimeout)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()
		store = mongostore.New(client.Database(cfg.MongoDatabase), logger)
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to document store")
	} else {
		logger.Warn().Msg("MONGO_URL not set; only $compile and $parameters are served")
	}

	e := newServer(ctx, cfg, logger, compiler, store)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer assembles the middleware chain and routes. store may be nil.
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, compiler *fhir.Compiler, store *mongostore.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RateLimit(ctx, rl))
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	var searcher fhir.Searcher
	if store != nil {
		searcher = store
		e.GET("/health", mongostore.HealthHandler(store, cfg.MongoTimeout))
	} else {
		e.GET("/health", func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "store": "disabled"})
		})
	}

	fhir.NewSearchHandler(compiler, searcher, logger).RegisterRoutes(e.Group("/fhir"))
	return e
}
