package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/reed/internal/repositories/candidate"
	"github.com/Ramsey-B/reed/internal/repositories/canonical"
	"github.com/Ramsey-B/reed/internal/repositories/canonicallink"
	"github.com/Ramsey-B/reed/internal/repositories/lifecycleaction"
	"github.com/Ramsey-B/reed/internal/repositories/nextbestaction"
	"github.com/Ramsey-B/reed/internal/repositories/provenance"
	"github.com/Ramsey-B/reed/internal/repositories/ruleset"
	"github.com/Ramsey-B/reed/internal/repositories/sourcelink"
	"github.com/Ramsey-B/reed/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/reed/pkg/database"
	"github.com/Ramsey-B/reed/pkg/ingest"
	"github.com/Ramsey-B/reed/pkg/lifecycle"
	"github.com/Ramsey-B/reed/pkg/models"
)

// testEnv wires the full repository and engine stack against a disposable
// PostgreSQL container with migrations applied.
type testEnv struct {
	ctx         context.Context
	db          database.DB
	candidates  *candidate.Repository
	canonicals  *canonical.Repository
	links       *canonicallink.Repository
	sources     *sourcerecord.Repository
	sourceLinks *sourcelink.Repository
	provenance  *provenance.Repository
	ruleSets    *ruleset.Repository
	lifecycle   *lifecycle.Engine
	builder     *ingest.Builder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping container-backed test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "reed",
			"POSTGRES_PASSWORD": "reed",
			"POSTGRES_DB":       "reed",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Port(),
		UserName: "reed",
		Password: "reed",
		Name:     "reed",
		SSLMode:  "disable",
	}, logger)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	instance, ok := db.(*database.DatabaseInstance)
	require.True(t, ok)
	driver, err := postgres.WithInstance(instance.DB.DB, &postgres.Config{})
	require.NoError(t, err)
	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: "../../db/pg",
	})
	require.NoError(t, service.Migrate("reed", driver), "failed to apply migrations")

	candidateRepo := candidate.NewRepository(db, logger)
	canonicalRepo := canonical.NewRepository(db, logger)
	linkRepo := canonicallink.NewRepository(db, logger)
	sourceRepo := sourcerecord.NewRepository(db, logger)
	sourceLinkRepo := sourcelink.NewRepository(db, logger)
	provenanceRepo := provenance.NewRepository(db, logger)
	ruleSetRepo := ruleset.NewRepository(db, logger)
	actionRepo := lifecycleaction.NewRepository(db, logger)
	nbaRepo := nextbestaction.NewRepository(db, logger)

	return &testEnv{
		ctx:         ctx,
		db:          db,
		candidates:  candidateRepo,
		canonicals:  canonicalRepo,
		links:       linkRepo,
		sources:     sourceRepo,
		sourceLinks: sourceLinkRepo,
		provenance:  provenanceRepo,
		ruleSets:    ruleSetRepo,
		lifecycle: lifecycle.NewEngine(logger, ruleSetRepo, candidateRepo, canonicalRepo,
			linkRepo, sourceLinkRepo, provenanceRepo, actionRepo, nbaRepo),
		builder: ingest.NewBuilder(logger, sourceRepo, candidateRepo, sourceLinkRepo, 100),
	}
}

func (env *testEnv) registerRules(t *testing.T, docs ...models.RuleDocument) {
	t.Helper()
	for _, doc := range docs {
		hash := fmt.Sprintf("test-%s-%s", doc.EntityType, doc.Version)
		_, _, err := env.ruleSets.Register(env.ctx, doc, hash)
		require.NoError(t, err, "failed to register %s rule set", doc.EntityType)
	}
}

func yachtRules() models.RuleDocument {
	return models.RuleDocument{
		EntityType:  models.EntityTypeYacht,
		SourceScope: "default",
		Version:     "2026.1",
		Thresholds:  models.Thresholds{Hold: 0.3, Review: 0.6, AutoPromote: 0.85},
		FeatureWeights: map[string]float64{
			"name":        0.50,
			"sail_number": 0.50,
		},
		SourcePrecedence: []string{"registrar", "measurement_office", "club_roster"},
		Survivorship: map[string]models.SurvivorshipMethod{
			"name": models.SurvivorshipHighestPrecedenceNonNull,
		},
	}
}

func (env *testEnv) seedYachtCandidate(t *testing.T, fp, name, sail, sourceSystem string) *models.Candidate {
	t.Helper()
	cand, err := env.candidates.Create(env.ctx, models.EntityTypeYacht, fp, map[string]any{
		"name":        name,
		"sail_number": sail,
	})
	require.NoError(t, err)

	_, err = env.sourceLinks.Insert(env.ctx, &models.SourceLink{
		EntityType:   models.EntityTypeYacht,
		CandidateID:  cand.ID,
		SourceSystem: sourceSystem,
		SourceTable:  "yachts",
		SourceRowKey: fp,
		RowHash:      "hash-" + fp,
	})
	require.NoError(t, err)
	return cand
}

// markPromotable moves a review candidate into auto_promote so a promotion
// run will pick it up.
func (env *testEnv) markPromotable(t *testing.T, cand *models.Candidate) {
	t.Helper()
	require.NoError(t, env.candidates.ApplyStateChange(env.ctx, cand, models.StateChange{
		ResolutionState: models.ResolutionStateAutoPromote,
	}))
	fresh, err := env.candidates.GetByID(env.ctx, cand.ID)
	require.NoError(t, err)
	*cand = *fresh
}
