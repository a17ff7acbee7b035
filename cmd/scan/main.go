// Command scan parses a batch of receipt files and writes an XLSX report.
//
// Text files are parsed directly. Images are transcribed with OpenAI first,
// which requires OPENAI_API_KEY.
//
//	scan [-o report.xlsx] [-j 4] dinner.txt lunch.jpg ...
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/receiptsplit/internal/export"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/parser"
	"github.com/mmynk/receiptsplit/internal/validation"
	"github.com/mmynk/receiptsplit/pkg/logging"
)

var errUnsupportedFile = errors.New("unsupported file type")

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	output := flag.StringP("output", "o", "scan-report.xlsx", "path of the XLSX report")
	concurrency := flag.IntP("concurrency", "j", 4, "files processed in parallel")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] files...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := logging.Setup(getEnv("LOG_LEVEL", "info"))

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var recognizer ocr.Recognizer
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		recognizer = ocr.NewOpenAIRecognizer(key, getEnv("OPENAI_MODEL", "gpt-4o"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Scanning receipts"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	rows := scanFiles(ctx, files, recognizer, *concurrency, func() { bar.Add(1) })
	fmt.Fprintln(os.Stderr)

	var failed int
	for _, row := range rows {
		if row.Err != nil {
			failed++
			logger.Error("Failed to scan receipt", "file", row.File, "error", row.Err)
			continue
		}
		for _, issue := range row.Issues {
			logger.Warn(issue.Message, "file", row.File, "type", issue.Type, "severity", issue.Severity)
		}
	}

	if err := writeReport(*output, rows); err != nil {
		logger.Error("Failed to write report", "path", *output, "error", err)
		os.Exit(1)
	}
	logger.Info("Report written", "path", *output, "files", len(rows), "failed", failed)
}

// scanFiles processes every file with at most concurrency workers. Rows are
// returned in input order; per-file failures are recorded on the row.
func scanFiles(ctx context.Context, files []string, recognizer ocr.Recognizer, concurrency int, progress func()) []export.ScanRow {
	rows := make([]export.ScanRow, len(files))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			defer progress()
			rows[i] = scanFile(ctx, file, recognizer)
			return nil
		})
	}
	_ = g.Wait()

	return rows
}

func scanFile(ctx context.Context, path string, recognizer ocr.Recognizer) export.ScanRow {
	row := export.ScanRow{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		row.Err = fmt.Errorf("failed to read file: %w", err)
		return row
	}

	var receipt models.Receipt
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		receipt = parser.Parse(string(data))
	case ".png", ".jpg", ".jpeg":
		if recognizer == nil {
			row.Err = fmt.Errorf("OPENAI_API_KEY is required to scan images")
			return row
		}
		result, err := ocr.Scan(ctx, recognizer, data)
		if err != nil {
			row.Err = err
			return row
		}
		if ocr.LowConfidence(result.Confidence) {
			slog.Warn("Low OCR confidence, review the transcription", "file", path, "confidence", result.Confidence)
		}
		receipt = result.Receipt
	default:
		row.Err = fmt.Errorf("%w: %s", errUnsupportedFile, filepath.Ext(path))
		return row
	}

	row.Receipt = &receipt
	row.Issues = validation.Validate(receipt)
	return row
}

func writeReport(path string, rows []export.ScanRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := export.WriteScanReport(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
