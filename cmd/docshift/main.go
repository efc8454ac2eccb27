package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	appconfig "github.com/docshift/docshift/internal/config"
	"github.com/docshift/docshift/internal/database/mongodb"
	pgstore "github.com/docshift/docshift/internal/database/postgres"
	"github.com/docshift/docshift/internal/engine"
	"github.com/docshift/docshift/pkg/config"
	"github.com/docshift/docshift/pkg/database"
	"github.com/docshift/docshift/pkg/logger"
)

var (
	manifestPath = flag.String("manifest", "docshift.yaml", "Path to the migration manifest")
	workers      = flag.Int("workers", 0, "Transform workers per collection (0 = one per CPU)")
	version      = "1.0.0"
)

func main() {
	flag.Parse()

	log := logger.New("docshift", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		stop()
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	manifest, err := appconfig.Load(*manifestPath)
	if err != nil {
		return err
	}

	cfg := config.New()
	cfg.Update(map[string]string{
		"source.uri":      manifest.Source.URI,
		"source.database": manifest.Source.Database,
		"target.host":     manifest.Target.Host,
		"target.port":     strconv.Itoa(manifest.Target.Port),
		"target.user":     manifest.Target.User,
		"target.password": manifest.Target.Password,
		"target.database": manifest.Target.Database,
		"target.sslmode":  manifest.Target.SSLMode,
	})

	source, err := mongodb.Connect(ctx, manifest.Source.URI, manifest.Source.Database)
	if err != nil {
		return fmt.Errorf("source connection: %w", err)
	}
	defer source.Disconnect(ctx)

	target, err := database.New(ctx, database.FromGlobalConfig(cfg))
	if err != nil {
		return fmt.Errorf("target connection: %w", err)
	}
	defer target.Close()

	redefines := engine.NewRedefineRegistry()

	collections := make([]engine.Collection, 0, len(manifest.Collections))
	for _, spec := range manifest.Collections {
		engineCfg, err := spec.EngineConfig(redefines)
		if err != nil {
			return err
		}

		records, dropped, err := mongodb.FetchRecords(source.Database(), spec.Name, spec.Limit)
		if err != nil {
			return fmt.Errorf("extracting collection %s: %w", spec.Name, err)
		}
		if dropped > 0 {
			log.Warnf("Collection %s: %d document(s) without identifier dropped at extraction", spec.Name, dropped)
		}
		log.Infof("Extracted %d records from collection %s", len(records), spec.Name)

		collections = append(collections, engine.Collection{
			Name:    spec.Name,
			Config:  engineCfg,
			Records: records,
		})
	}

	migrator := engine.NewMigrator(pgstore.NewStore(target.Pool()), pgstore.NewReconciler(target.Pool()), log)
	migrator.Workers = *workers

	results, err := migrator.Migrate(ctx, collections)
	for _, result := range results {
		for _, warning := range result.Warnings {
			log.Warn("%s", warning.String())
		}
	}
	if err != nil {
		return err
	}

	for _, result := range results {
		fmt.Printf("%-24s inserted=%-6d skipped=%-6d links=%-6d warnings=%d\n",
			result.Collection, result.Inserted, result.Skipped, result.LinkRows, len(result.Warnings))
	}
	return nil
}
