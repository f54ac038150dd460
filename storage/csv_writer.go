package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"metal-price-scraper/models"
)

var datasetHeader = []string{"Date", "Currency", "Commodity", "Price", "Unit"}

// CSVDataset is an append-only CSV log of price records.
// It is safe for concurrent use.
type CSVDataset struct {
	mu   sync.Mutex
	path string
	file *os.File
}

var _ DatasetWriter = (*CSVDataset)(nil)

// NewCSVDataset opens (or creates) the dataset at path. Intermediate
// directories are created automatically. A trailing partial line left by an
// interrupted write is cut off, and the header is written if the file is empty.
func NewCSVDataset(path string) (*CSVDataset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	size, err := truncateTornTail(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: repair %q: %w", path, err)
	}

	d := &CSVDataset{path: path, file: f}
	if size == 0 {
		if err := d.writeRows([][]string{datasetHeader}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
	}
	return d, nil
}

// Append writes the batch at the end of the file with a single write and
// syncs it to disk.
func (d *CSVDataset) Append(ctx context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Date,
			string(r.Currency),
			r.Commodity,
			formatPrice(r.Price),
			r.Unit,
		})
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeRows(rows); err != nil {
		return fmt.Errorf("csv: append to %q: %w", d.path, err)
	}
	return nil
}

// commit writes p and syncs it to disk.
var commit = func(f *os.File, p []byte) error {
	if _, err := f.Write(p); err != nil {
		return err
	}
	return f.Sync()
}

// writeRows appends rows in one write. On failure the file is cut back to its
// previous size so the next append never lands after a torn line.
func (d *CSVDataset) writeRows(rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return err
	}

	info, err := d.file.Stat()
	if err != nil {
		return err
	}
	if err := commit(d.file, buf.Bytes()); err != nil {
		if terr := d.file.Truncate(info.Size()); terr != nil {
			return errors.Join(err, fmt.Errorf("roll back to %d bytes: %w", info.Size(), terr))
		}
		return err
	}
	return nil
}

// Close closes the underlying file.
func (d *CSVDataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}

// ReadDataset loads every record from a CSV dataset in file order.
func ReadDataset(path string) ([]models.PriceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(datasetHeader)

	var records []models.PriceRecord
	line := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read %q: %w", path, err)
		}
		line++
		if line == 1 && row[0] == datasetHeader[0] {
			continue
		}

		price, err := parsePrice(row[3])
		if err != nil {
			return nil, fmt.Errorf("csv: %q line %d: %w", path, line, err)
		}
		records = append(records, models.PriceRecord{
			Date:      row[0],
			Currency:  models.Currency(row[1]),
			Commodity: row[2],
			Price:     price,
			Unit:      row[4],
		})
	}
	return records, nil
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return ""
	}
	return p.Decimal.String()
}

func parsePrice(cell string) (decimal.NullDecimal, error) {
	if cell == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(cell)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("price %q: %w", cell, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// truncateTornTail cuts the file back to just after its last newline and
// returns the resulting size.
func truncateTornTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return size, nil
			}
			return keep, f.Truncate(keep)
		}
		end = start
	}
	return 0, f.Truncate(0)
}
