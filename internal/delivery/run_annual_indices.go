// Package delivery wires the field, imagery, dataset, store and output
// packages into the use cases exposed by the CLI and the menu.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/cache"
	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/notification"
	"github.com/forest-guardian/field-indices-cli/internal/properties"
	"github.com/forest-guardian/field-indices-cli/internal/raster"
	"github.com/forest-guardian/field-indices-cli/internal/sentinel"
	"github.com/forest-guardian/field-indices-cli/internal/store"
	"github.com/forest-guardian/field-indices-cli/output"
)

// BuiltinFields labels runs over the fields compiled into the binary.
const BuiltinFields = "builtin"

// sceneCatalogMaxAge bounds how long a catalog answer is reused, so scenes
// added by reprocessing are eventually picked up.
const sceneCatalogMaxAge = 30 * 24 * time.Hour

// Deps are the collaborators of the use cases.
type Deps struct {
	Source   dataset.ImageSource
	Store    *store.SQLiteStore
	Notifier *notification.Notifier
}

// NewImageSource builds the Sentinel Hub backed image source with its
// scene cache and GeoTIFF store under $ROOT_PATH/data.
func NewImageSource(ctx context.Context, cfg config.SentinelConfig) (*raster.Source, error) {
	client, err := sentinel.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	images := raster.NewImageStore(properties.ImagesPath())
	scenes := cache.NewFileCache[[]sentinel.Scene]("scenes").WithMaxAge(sceneCatalogMaxAge)
	return raster.NewSource(client, images, scenes, cfg.MaxCloudCover, cfg.Resolution), nil
}

// OpenStore opens the run history database and applies the schema.
func OpenStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// LoadFields returns the configured fields and a label of where they came
// from.
func LoadFields(cfg config.FieldsConfig) ([]field.Field, string, error) {
	if cfg.Source == "" {
		return field.DefaultFields(), BuiltinFields, nil
	}
	fields, err := field.Load(cfg.Source, cfg.IDProperty)
	if err != nil {
		return nil, "", err
	}
	return fields, cfg.Source, nil
}

type RunOptions struct {
	Fields       []field.Field
	FieldsSource string
	StartYear    int
	EndYear      int
	Format       output.Format
	OutputDir    string
	// Description names the exported file. Empty derives it from the years.
	Description string
	// MaxConcurrent bounds scene downloads per field and year.
	MaxConcurrent int
	Quiet         bool
}

type RunResult struct {
	Run     *store.Run
	Records []dataset.Record
	Path    string
}

// RunAnnualIndices computes the annual statistics of every field, stores
// them as a new run and exports the table. The run is marked failed and the
// error webhook notified when any step fails.
func RunAnnualIndices(ctx context.Context, deps Deps, opts RunOptions) (*RunResult, error) {
	if err := field.Validate(opts.Fields); err != nil {
		return nil, err
	}
	if opts.StartYear > opts.EndYear {
		return nil, eris.Wrapf(dataset.ErrInvalidYears, "delivery: %d > %d", opts.StartYear, opts.EndYear)
	}

	run, err := deps.Store.CreateRun(ctx, store.RunParams{
		StartYear:    opts.StartYear,
		EndYear:      opts.EndYear,
		FieldsSource: opts.FieldsSource,
	})
	if err != nil {
		return nil, err
	}
	logger := zap.L().With(zap.String("run", run.ID))
	logger.Info("delivery: run started",
		zap.Int("start", opts.StartYear),
		zap.Int("end", opts.EndYear),
		zap.Int("fields", len(opts.Fields)),
	)

	result, runErr := runAnnualIndices(ctx, deps, run, opts)

	// the run is finished even when the caller's context was cancelled
	finishCtx := context.WithoutCancel(ctx)
	if err := deps.Store.FinishRun(finishCtx, run.ID, runErr); err != nil {
		logger.Error("delivery: finish run", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("delivery: run failed", zap.Error(runErr))
		notify(deps.Notifier.SendError(finishCtx, fmt.Sprintf("run %s: %v", run.ID, runErr)))
		return nil, runErr
	}

	logger.Info("delivery: run complete", zap.Int("records", len(result.Records)), zap.String("path", result.Path))
	notify(deps.Notifier.SendSuccess(finishCtx, fmt.Sprintf(
		"Run %s: %d records for %d fields (%d-%d) exported to %s",
		run.ID, len(result.Records), len(opts.Fields), opts.StartYear, opts.EndYear, result.Path,
	)))

	result.Run, err = deps.Store.GetRun(finishCtx, run.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func runAnnualIndices(ctx context.Context, deps Deps, run *store.Run, opts RunOptions) (*RunResult, error) {
	if err := deps.Store.SaveFields(ctx, run.ID, opts.Fields); err != nil {
		return nil, err
	}

	records, err := dataset.BuildAnnualDataset(ctx, deps.Source, opts.Fields, opts.StartYear, opts.EndYear, dataset.Options{
		MaxConcurrent: opts.MaxConcurrent,
		Quiet:         opts.Quiet,
	})
	if err != nil {
		return nil, err
	}

	if err := deps.Store.SaveRecords(ctx, run.ID, records); err != nil {
		return nil, err
	}

	description := opts.Description
	if description == "" {
		description = config.DefaultDescription(opts.StartYear, opts.EndYear)
	}
	path, err := output.Export(opts.Format, opts.OutputDir, description, records, opts.Fields)
	if err != nil {
		return nil, err
	}
	return &RunResult{Records: records, Path: path}, nil
}

func notify(err error) {
	if err != nil {
		zap.L().Warn("delivery: notification not sent", zap.Error(err))
	}
}
