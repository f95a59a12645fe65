package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/reed/config"
	"github.com/Ramsey-B/reed/internal/repositories/candidate"
	"github.com/Ramsey-B/reed/internal/repositories/canonical"
	"github.com/Ramsey-B/reed/internal/repositories/canonicallink"
	"github.com/Ramsey-B/reed/internal/repositories/lifecycleaction"
	lineagerepo "github.com/Ramsey-B/reed/internal/repositories/lineage"
	"github.com/Ramsey-B/reed/internal/repositories/nextbestaction"
	"github.com/Ramsey-B/reed/internal/repositories/provenance"
	"github.com/Ramsey-B/reed/internal/repositories/ruleset"
	"github.com/Ramsey-B/reed/internal/repositories/scorerun"
	"github.com/Ramsey-B/reed/internal/repositories/sourcelink"
	"github.com/Ramsey-B/reed/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/ingest"
	"github.com/Ramsey-B/reed/pkg/lifecycle"
	"github.com/Ramsey-B/reed/pkg/lineage"
	"github.com/Ramsey-B/reed/pkg/logging"
	"github.com/Ramsey-B/reed/pkg/models"
	"github.com/Ramsey-B/reed/pkg/scoring"
	"github.com/Ramsey-B/reed/pkg/tracing"
	"github.com/Ramsey-B/reed/pkg/tracing/exporters"
	"github.com/Ramsey-B/reed/pkg/trust"
)

// app carries process-wide dependencies shared by the subcommands.
type app struct {
	envFile string

	cfg    config.Config
	logger ectologger.Logger
	db     database.DB

	tracerProvider *sdktrace.TracerProvider
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "reed",
		Short:         "Entity resolution and lifecycle engine for regatta data",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrap(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "env file to load before reading configuration")

	root.AddCommand(
		newMigrateCmd(a),
		newRulesCmd(a),
		newLinkCmd(a),
		newScoreCmd(a),
		newPromoteCmd(a),
		newApplyCmd(a),
		newLifecycleCmd(a),
		newLineageCmd(a),
		newPurgeCheckCmd(a),
		newIntakeCmd(a),
	)
	return root
}

// bootstrap loads configuration and builds the logger and tracer. Database
// connections are opened lazily by the commands that need one.
func (a *app) bootstrap(ctx context.Context) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load env file %s: %w", a.envFile, err)
		}
	}
	if err := ectoenv.BindEnv(&a.cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a.logger = logging.New(a.cfg.PrettyLogs)

	if a.cfg.TracingEnabled {
		exporter, err := a.newExporter(ctx)
		if err != nil {
			return err
		}
		a.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(a.tracerProvider)
		tracing.SetTracer(a.tracerProvider.Tracer(a.cfg.AppName))
	}
	return nil
}

func (a *app) newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch a.cfg.TracingExporter {
	case "otlp":
		otlpCfg := exporters.DefaultOTLPConfig()
		otlpCfg.Endpoint = a.cfg.TracingOTLPEndpoint
		otlpCfg.Protocol = a.cfg.TracingOTLPProtocol
		return exporters.NewOTLPExporter(ctx, otlpCfg)
	case "console":
		return exporters.NewConsoleExporter()
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", a.cfg.TracingExporter)
	}
}

func (a *app) close(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithContext(ctx).WithError(err).Error("Failed to close database")
		}
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.WithContext(ctx).WithError(err).Error("Failed to shut down tracer provider")
		}
	}
	return nil
}

// connect opens the resolution store.
func (a *app) connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		UserName:        a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *app) builder() *ingest.Builder {
	return ingest.NewBuilder(
		a.logger,
		sourcerecord.NewRepository(a.db, a.logger),
		candidate.NewRepository(a.db, a.logger),
		sourcelink.NewRepository(a.db, a.logger),
		a.cfg.LinkBatchSize,
	)
}

func (a *app) scoringEngine() (*scoring.Engine, error) {
	policy, err := trust.LoadFile(a.cfg.TrustPolicyPath)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(
		a.logger,
		ruleset.NewRepository(a.db, a.logger),
		candidate.NewRepository(a.db, a.logger),
		sourcelink.NewRepository(a.db, a.logger),
		scorerun.NewRepository(a.db, a.logger),
		nextbestaction.NewRepository(a.db, a.logger),
		policy.Policy,
		a.cfg.ScoreBatchSize,
	), nil
}

func (a *app) lifecycleEngine() *lifecycle.Engine {
	return lifecycle.NewEngine(
		a.logger,
		ruleset.NewRepository(a.db, a.logger),
		candidate.NewRepository(a.db, a.logger),
		canonical.NewRepository(a.db, a.logger),
		canonicallink.NewRepository(a.db, a.logger),
		sourcelink.NewRepository(a.db, a.logger),
		provenance.NewRepository(a.db, a.logger),
		lifecycleaction.NewRepository(a.db, a.logger),
		nextbestaction.NewRepository(a.db, a.logger),
	)
}

func (a *app) reporter(thresholds models.LineageThresholds) *lineage.Reporter {
	return lineage.NewReporter(
		a.logger,
		lineagerepo.NewRepository(a.db, a.logger),
		sourcerecord.NewRepository(a.db, a.logger),
		thresholds,
	)
}
