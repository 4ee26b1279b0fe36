package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sabarim/fyerschain/internal/config"
	"github.com/sabarim/fyerschain/internal/logger"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"
)

// Writer saves priced chain snapshots as parquet and/or csv files
type Writer struct {
	outputDir string
	parquet   bool
	csv       bool
	logger    *zap.Logger
}

// NewWriter creates a snapshot writer for the export settings
func NewWriter(cfg config.ExportConfig, log *zap.Logger) *Writer {
	return &Writer{
		outputDir: cfg.OutputDir,
		parquet:   cfg.ParquetEnabled,
		csv:       cfg.CSVEnabled,
		logger:    logger.OrNop(log),
	}
}

// Enabled reports whether any output format is switched on
func (w *Writer) Enabled() bool {
	return w.parquet || w.csv
}

// Write stores snap under <output_dir>/<underlying>/ and returns the paths written
func (w *Writer) Write(snap Snapshot) ([]string, error) {
	if !w.Enabled() {
		return nil, nil
	}

	dir := filepath.Join(w.outputDir, strings.ToUpper(snap.Underlying))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	base := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_%s",
		strings.ToUpper(snap.Underlying),
		snap.ExpiryDate,
		snap.Side,
		snap.TakenAt.UTC().Format("20060102T150405Z")))

	var written []string
	if w.parquet {
		path := base + ".parquet"
		if err := WriteParquet(path, snap); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if w.csv {
		path := base + ".csv"
		if err := WriteCSV(path, snap); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	w.logger.Info("Snapshot written",
		zap.String("underlying", snap.Underlying),
		zap.Int("rows", len(snap.Rows)),
		zap.Strings("files", written))
	return written, nil
}

// WriteParquet writes snap as a gzip compressed parquet file
func WriteParquet(filename string, snap Snapshot) error {
	fw, err := local.NewLocalFileWriter(filename)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRow), 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.PageSize = 8 * 1024

	takenAt := snap.TakenAt.Unix()
	for _, row := range snap.Rows {
		rec := ParquetRow{
			SnapshotAt:     takenAt,
			InstrumentName: row.InstrumentName,
			ExpiryDate:     snap.ExpiryDate,
			Symbol:         row.Symbol,
			StrikePrice:    row.StrikePrice,
			OptionSide:     string(row.Side),
			Price:          row.Price,
			Margin:         row.Margin,
			Premium:        row.Premium,
			Status:         string(row.Status),
			Error:          row.Error,
		}
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("failed to write parquet data: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// WriteCSV writes snap as a csv file with a header row
func WriteCSV(filename string, snap Snapshot) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	records := make([]*CSVRow, 0, len(snap.Rows))
	for _, row := range snap.Rows {
		records = append(records, &CSVRow{
			InstrumentName: row.InstrumentName,
			ExpiryDate:     snap.ExpiryDate,
			Symbol:         row.Symbol,
			StrikePrice:    row.StrikePrice,
			OptionSide:     string(row.Side),
			Price:          row.Price,
			Margin:         row.Margin,
			Premium:        row.Premium,
			Status:         string(row.Status),
			Error:          row.Error,
		})
	}

	if err := gocsv.MarshalFile(&records, file); err != nil {
		return fmt.Errorf("failed to write csv data: %w", err)
	}
	return nil
}
