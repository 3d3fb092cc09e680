package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"fondos/internal/catalog"
	"fondos/internal/config"
	"fondos/internal/domain"
	"fondos/internal/email/noop"
	"fondos/internal/email/ses"
	"fondos/internal/port"
	"fondos/internal/repository/memory"
	"fondos/internal/repository/postgres"
	"fondos/internal/service"
	s3storage "fondos/internal/storage/s3"
)

type app struct {
	svc service.ImportService
	db  *sqlx.DB
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// setup wires the import service. Dry runs use an in-memory store and never
// open a database connection.
func setup(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	policies, err := catalogPolicies(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var (
		catalogs port.CatalogRepository
		records  port.RecordRepository
		advances port.AdvanceRepository
		runs     port.ImportRunRepository
	)
	if cfg.Import.DryRun {
		store := memory.NewStore()
		catalogs, records, advances, runs = store.Catalogs(), store.Records(), store.Advances(), store.Runs()
		log.Warn("dry run: nothing will be written to the database")
	} else {
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		catalogs = postgres.NewCatalogRepo(db)
		records = postgres.NewRecordRepo(db)
		advances = postgres.NewAdvanceRepo(db)
		runs = postgres.NewImportRunRepo(db)
	}

	var storage port.ObjectStorage
	if cfg.S3.Enabled() || cfg.S3.Region != "" {
		storage, err = s3storage.NewS3Client(ctx, &cfg.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
	}

	sender, err := emailSender(ctx, &cfg.Email, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = service.NewImportService(catalogs, records, advances, runs, storage, sender, policies, &cfg.S3, log)
	return a, nil
}

func emailSender(ctx context.Context, cfg *config.EmailConfig, log logrus.FieldLogger) (port.EmailSender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "noop":
		return noop.NewNoopSender(log), nil
	case "ses":
		sender, err := ses.NewSESSender(ctx, cfg.Region, cfg.FromAddress, cfg.FromName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SES sender: %w", err)
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// catalogPolicies applies the configured overrides on top of the defaults.
func catalogPolicies(cfg *config.Config) (map[domain.Dimension]catalog.Policy, error) {
	overrides, err := cfg.CatalogPolicies()
	if err != nil {
		return nil, err
	}
	policies := catalog.DefaultPolicies()
	for dim, o := range overrides {
		p := policies[dim]
		if o.AutoCreate != nil {
			p.AutoCreate = *o.AutoCreate
		}
		if o.NumericPassthrough != nil {
			p.NumericPassthrough = *o.NumericPassthrough
		}
		policies[dim] = p
	}
	return policies, nil
}
