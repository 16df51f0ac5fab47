package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/markedit/internal/config"
	"github.com/debemdeboas/markedit/internal/db"
	"github.com/debemdeboas/markedit/internal/logger"
	"github.com/debemdeboas/markedit/internal/repository"
	"github.com/debemdeboas/markedit/internal/util/compression"
)

var log zerolog.Logger

// main imports every markdown file in a directory into the configured document store.
func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the YAML config file")
	path := flag.String("path", "", "Path to the directory containing markdown files")
	flag.Parse()

	log = logger.New("info")
	config.SetLogger(log)
	repository.SetLogger(log)
	db.SetLogger(log)

	if *path == "" {
		log.Fatal().Msg("The --path flag is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()
	repo, closeRepo, err := openDocuments(ctx, config.AppConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer closeRepo()

	created, reused, failed := importDir(ctx, repo, *path, config.AppConfig.Editor.ImportExtensions)
	log.Info().Int("created", created).Int("reused", reused).Int("failed", failed).Msg("Import finished")
	if failed > 0 {
		os.Exit(1)
	}
}

// importDir imports the matching files directly inside dir. Files already linked to a document
// are left alone.
func importDir(ctx context.Context, repo repository.DocumentRepository, dir string, exts []string) (created, reused, failed int) {
	files, err := os.ReadDir(dir)
	if err != nil {
		log.Error().Err(err).Str("path", dir).Msg("Error reading directory")
		return 0, 0, 1
	}

	for _, file := range files {
		if file.IsDir() || !repository.HasExtension(file.Name(), exts) {
			continue
		}

		doc, isNew, err := repository.ImportFile(ctx, repo, filepath.Join(dir, file.Name()))
		if err != nil {
			log.Error().Err(err).Str("file", file.Name()).Msg("Error importing file")
			failed++
			continue
		}
		if isNew {
			created++
			log.Info().Str("file", file.Name()).Str("document_id", string(doc.ID)).Str("title", doc.Title).Msg("Imported")
		} else {
			reused++
			log.Info().Str("file", file.Name()).Str("document_id", string(doc.ID)).Msg("Already imported")
		}
	}
	return created, reused, failed
}

func openDocuments(ctx context.Context, cfg *config.Config) (repository.DocumentRepository, func(), error) {
	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		d := db.NewSQLite(cfg.Path(cfg.Storage.SQLitePath))
		if err := d.InitDB(); err != nil {
			return nil, nil, fmt.Errorf(config.ErrInitializeDatabaseFmt, err)
		}
		return repository.NewDBDocumentRepository(d, compression.ByName(cfg.Storage.Compression)), func() { d.Close() }, nil
	case config.StorageFS:
		repo, err := repository.NewFSDocumentRepository(cfg.Path(cfg.Storage.Dir))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case config.StorageS3:
		repo, err := repository.NewS3DocumentRepository(ctx, repository.S3Options{
			Bucket:          cfg.Storage.S3.Bucket,
			Prefix:          cfg.Storage.S3.Prefix,
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("S3_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
