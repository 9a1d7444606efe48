// Package file writes harvest output to the local filesystem: a CSV of
// records appended as they arrive and a JSON report written on flush.
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/report"
)

// Config captures the parameters for the file sink.
type Config struct {
	// Dir is the output directory, created if missing.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ReportName is the report file name. Defaults to report.json.
	ReportName string `mapstructure:"report_name" yaml:"report_name"`
	// RecordsName is the records CSV file name. Defaults to records.csv.
	RecordsName string `mapstructure:"records_name" yaml:"records_name"`
}

var csvHeader = []string{
	"market", "title", "price", "currency", "url", "image_url",
	"rating", "reviews_count", "availability", "seller",
	"description", "category", "brand", "sku", "harvested_at",
}

// Sink streams records into a CSV file and writes the report with a
// write-then-rename so readers never observe a partial report.
type Sink struct {
	dir         string
	reportName  string
	recordsName string

	mu  sync.Mutex
	f   *os.File
	csv *csv.Writer
}

// New creates the output directory and returns a ready Sink. The CSV file
// is created lazily on the first record.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if cfg.ReportName == "" {
		cfg.ReportName = "report.json"
	}
	if cfg.RecordsName == "" {
		cfg.RecordsName = "records.csv"
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Sink{
		dir:         cfg.Dir,
		reportName:  cfg.ReportName,
		recordsName: cfg.RecordsName,
	}, nil
}

// Publish appends one record to the CSV file, writing the header first.
func (s *Sink) Publish(_ context.Context, rec harvest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.csv == nil {
		f, err := os.Create(filepath.Join(s.dir, s.recordsName))
		if err != nil {
			return fmt.Errorf("failed to create records file: %w", err)
		}
		s.f = f
		s.csv = csv.NewWriter(f)
		if err := s.csv.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	row := []string{
		rec.Market,
		rec.Title,
		strconv.FormatFloat(rec.Price, 'f', 2, 64),
		rec.Currency,
		rec.URL,
		rec.ImageURL,
		strconv.FormatFloat(rec.Rating, 'f', -1, 64),
		strconv.Itoa(rec.ReviewsCount),
		rec.Availability,
		rec.Seller,
		rec.Description,
		rec.Category,
		rec.Brand,
		rec.SKU,
		rec.HarvestedAt.UTC().Format(time.RFC3339),
	}
	if err := s.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// Flush closes the CSV file and writes the report atomically.
func (s *Sink) Flush(_ context.Context, rep *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeRecordsLocked(); err != nil {
		return err
	}
	if rep == nil {
		return nil
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	target := filepath.Join(s.dir, s.reportName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}

// Close releases the CSV file handle without writing a report.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeRecordsLocked()
}

func (s *Sink) closeRecordsLocked() error {
	if s.csv == nil {
		return nil
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("failed to close records file: %w", err)
	}
	s.f = nil
	s.csv = nil
	return nil
}
