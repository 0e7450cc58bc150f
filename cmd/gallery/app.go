package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/batch"
	"github.com/MarcoPoloResearchLab/gallery/internal/catalog"
	"github.com/MarcoPoloResearchLab/gallery/internal/config"
	"github.com/MarcoPoloResearchLab/gallery/internal/journal"
	"github.com/MarcoPoloResearchLab/gallery/internal/library"
	"github.com/MarcoPoloResearchLab/gallery/internal/logging"
)

// application holds the collaborators shared by every subcommand.
type application struct {
	config  config.AppConfig
	logger  *zap.Logger
	backend catalog.Backend
	library *library.Library
	journal *journal.Journal
}

func (a *application) init() error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	a.config = appConfig

	logger, err := logging.NewConsoleLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	a.logger = logger

	backend, err := catalog.NewProcessBackend(catalog.ProcessConfig{
		Executable: appConfig.BackendExecutable,
		Timeout:    appConfig.BackendTimeout,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	a.backend = backend

	lib, err := library.New(library.Config{
		Root:    appConfig.StoreRoot,
		Backend: backend,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	a.library = lib
	return nil
}

// openJournal opens the batch journal on first use. An empty path disables it.
func (a *application) openJournal() (*journal.Journal, error) {
	if a.journal != nil || a.config.JournalPath == "" {
		return a.journal, nil
	}
	j, err := journal.Open(a.config.JournalPath, a.logger)
	if err != nil {
		return nil, err
	}
	a.journal = j
	return j, nil
}

func (a *application) newExecutor() (*batch.Executor, *journal.Journal, error) {
	j, err := a.openJournal()
	if err != nil {
		return nil, nil, err
	}
	cfg := batch.ExecutorConfig{
		Store:   a.library,
		Backend: a.backend,
		Logger:  a.logger,
	}
	if j != nil {
		cfg.Recorder = j
	}
	executor, err := batch.NewExecutor(cfg)
	if err != nil {
		return nil, nil, err
	}
	return executor, j, nil
}

func (a *application) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("journal close failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// findPhoto resolves an id argument to a catalog record.
func (a *application) findPhoto(ctx context.Context, arg string) (catalog.PhotoRecord, error) {
	id, err := parsePhotoID(arg)
	if err != nil {
		return catalog.PhotoRecord{}, err
	}
	photo, found, err := a.library.Find(ctx, id)
	if err != nil {
		return catalog.PhotoRecord{}, err
	}
	if !found {
		return catalog.PhotoRecord{}, fmt.Errorf("photo %d not found", id)
	}
	return photo, nil
}

var errInvalidPhotoID = errors.New("photo id must be a positive integer")

func parsePhotoID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidPhotoID, arg)
	}
	return id, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
