package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/release-engineering/greenwave-sub000/app"
	"github.com/release-engineering/greenwave-sub000/config"
	"github.com/release-engineering/greenwave-sub000/internal/observability"
	"github.com/release-engineering/greenwave-sub000/routes"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/services/subjects"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile         string
	policiesDir     string
	subjectTypesDir string
	checkPolicies   bool
	showVersion     bool
}

func parseFlags(args []string) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("greenwave", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "file with environment variables to load first")
	flagSet.StringVar(&opts.policiesDir, "policies-dir", "", "directory of policy YAML files (overrides POLICIES_DIR)")
	flagSet.StringVar(&opts.subjectTypesDir, "subject-types-dir", "", "directory of subject type YAML files (overrides SUBJECT_TYPES_DIR)")
	flagSet.BoolVar(&opts.checkPolicies, "check-policies", false, "validate the policy and subject type files and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return &opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "greenwave %s\n", version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, opts.envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.policiesDir != "" {
		cfg.Policies.PoliciesDir = opts.policiesDir
	}
	if opts.subjectTypesDir != "" {
		cfg.Policies.SubjectTypesDir = opts.subjectTypesDir
	}

	if opts.checkPolicies {
		return checkPolicies(cfg.Policies, stdout)
	}

	logger, err := observability.NewLogger(cfg.Observability, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	deps.Version = version

	return serve(ctx, deps)
}

// checkPolicies loads the configured documents the way the server does
func checkPolicies(cfg config.PoliciesConfig, stdout io.Writer) error {
	types, err := subjects.LoadDir(cfg.SubjectTypesDir)
	if err != nil {
		return fmt.Errorf("invalid subject types: %w", err)
	}
	policies, err := policy.LoadDir(cfg.PoliciesDir)
	if err != nil {
		return fmt.Errorf("invalid policies: %w", err)
	}
	fmt.Fprintf(stdout, "%d subject types and %d policies are valid\n", len(types), len(policies))
	return nil
}

func serve(ctx context.Context, deps *app.Dependencies) error {
	cfg, logger := deps.Config, deps.Logger

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("greenwave listening",
			zap.String("addr", srv.Addr),
			zap.String("version", version),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("failed to close dependencies", zap.Error(err))
	}
	return serveErr
}
