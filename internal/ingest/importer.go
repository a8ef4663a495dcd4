package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/resilience"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/store"
)

// DefaultBatchSize is how many rows are flushed to the store per upsert.
const DefaultBatchSize = 500

// Summary reports the outcome of one import.
type Summary struct {
	Rows     int   `json:"rows"`
	Imported int64 `json:"imported"`
	Skipped  int   `json:"skipped"`
}

// Importer loads extracts into the store in batches. Imports are idempotent:
// re-running the same file upserts on (source, external_id).
type Importer struct {
	store     store.Store
	batchSize int
	retry     resilience.RetryConfig
	log       *zap.Logger
}

func NewImporter(st store.Store, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{
		store:     st,
		batchSize: batchSize,
		retry:     resilience.DefaultRetryConfig(),
		log:       zap.L().With(zap.String("component", "ingest")),
	}
}

// ImportRecords reads an extract file (CSV or XLSX, by extension) and
// upserts its rows as external records for the given source. Rows without
// an external id are skipped and counted, never fatal.
func (im *Importer) ImportRecords(ctx context.Context, path string, source model.Source) (*Summary, error) {
	ext, err := openExtract(ctx, path)
	if err != nil {
		return nil, err
	}
	defer ext.close()

	mapper, err := NewRowMapper(source, ext.header)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	batch := make([]model.ExternalRecord, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := resilience.DoVal(ctx, im.retry, func(ctx context.Context) (int64, error) {
			return im.store.UpsertExternalRecords(ctx, batch)
		})
		if err != nil {
			return err
		}
		sum.Imported += n
		batch = batch[:0]
		return nil
	}

	for row := range ext.rows {
		sum.Rows++
		rec, ok := mapper.Record(row)
		if !ok {
			sum.Skipped++
			im.log.Warn("skipping row without external id",
				zap.String("source", string(source)), zap.Int("row", sum.Rows))
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return sum, err
			}
		}
	}
	if ext.errCh != nil {
		if err := <-ext.errCh; err != nil {
			return sum, err
		}
	}
	if err := flush(); err != nil {
		return sum, err
	}

	im.log.Info("import complete",
		zap.String("source", string(source)),
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", sum.Rows),
		zap.Int64("imported", sum.Imported),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

// LoadDrivers reads a canonical driver snapshot CSV and upserts it.
func (im *Importer) LoadDrivers(ctx context.Context, path string) (*Summary, error) {
	ext, err := openExtract(ctx, path)
	if err != nil {
		return nil, err
	}
	defer ext.close()

	mapper, err := NewDriverMapper(ext.header)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	batch := make([]model.CanonicalDriver, 0, im.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := resilience.DoVal(ctx, im.retry, func(ctx context.Context) (int64, error) {
			return im.store.UpsertDrivers(ctx, batch)
		})
		if err != nil {
			return err
		}
		sum.Imported += n
		batch = batch[:0]
		return nil
	}

	for row := range ext.rows {
		sum.Rows++
		d, ok := mapper.Driver(row)
		if !ok {
			sum.Skipped++
			continue
		}
		batch = append(batch, d)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return sum, err
			}
		}
	}
	if ext.errCh != nil {
		if err := <-ext.errCh; err != nil {
			return sum, err
		}
	}
	if err := flush(); err != nil {
		return sum, err
	}

	im.log.Info("driver snapshot loaded",
		zap.String("file", filepath.Base(path)),
		zap.Int64("drivers", sum.Imported),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

// extract is an open extract file: its header row, a channel of data rows,
// an optional stream error channel (nil for XLSX, which is read eagerly),
// and a close func the caller must defer.
type extract struct {
	header []string
	rows   <-chan []string
	errCh  <-chan error
	close  func()
}

func openExtract(ctx context.Context, path string) (*extract, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}

		headerCh := make(chan []string, 1)
		rows, errCh := StreamCSV(ctx, f, CSVOptions{HeaderCh: headerCh})
		select {
		case header, ok := <-headerCh:
			if ok {
				return &extract{header: header, rows: rows, errCh: errCh, close: func() { f.Close() }}, nil
			}
		case err := <-errCh:
			if err != nil {
				f.Close()
				return nil, err
			}
		}
		f.Close()
		return nil, eris.Errorf("ingest: %s is empty", path)

	case ".xlsx":
		all, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, eris.Errorf("ingest: %s is empty", path)
		}
		rowCh := make(chan []string, len(all))
		for _, row := range all[1:] {
			rowCh <- row
		}
		close(rowCh)
		return &extract{header: all[0], rows: rowCh, close: func() {}}, nil

	default:
		return nil, eris.Errorf("ingest: unsupported extract format %q", filepath.Ext(path))
	}
}
