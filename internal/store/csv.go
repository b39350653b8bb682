package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gocarina/gocsv"

	apperrors "tw-screener/internal/errors"
	"tw-screener/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore keeps the history log in a single CSV file. Rows are kept in
// insertion order; replacing a key moves the row to the end.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore creates a CSV backed store. The file is created on first Save.
func NewCSVStore(path string) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperrors.NewStoreError(BackendCSV, "open", err)
		}
	}
	return &CSVStore{path: path}, nil
}

// Save merges records into the file, last write wins per key.
func (s *CSVStore) Save(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := normalizeAll(records)
	if err != nil {
		return apperrors.NewStoreError(BackendCSV, "save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll()
	if err != nil {
		return err
	}
	merged := Merge(existing, normalized)
	return s.writeAll(merged)
}

// Load returns matching records sorted by screen date, in file order within a date.
func (s *CSVStore) Load(ctx context.Context, filter HistoryFilter) ([]models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = NormalizeFilter(filter)

	s.mu.Lock()
	all, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]models.HistoryRecord, 0, len(all))
	for _, r := range all {
		n, ok := normalize(r)
		if ok && filter.match(n) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScreenDate < out[j].ScreenDate })
	return limitRecords(out, filter.Limit), nil
}

// Clear removes the file.
func (s *CSVStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return apperrors.NewStoreError(BackendCSV, "clear", err)
	}
	return nil
}

// Close is a no-op.
func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) readAll() ([]models.HistoryRecord, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreError(BackendCSV, "read", err)
	}
	defer f.Close()

	records, err := Import(f)
	if err != nil {
		return nil, apperrors.NewStoreError(BackendCSV, "read", err)
	}
	return records, nil
}

// writeAll replaces the file atomically through a temp file in the same directory.
func (s *CSVStore) writeAll(records []models.HistoryRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.csv")
	if err != nil {
		return apperrors.NewStoreError(BackendCSV, "write", err)
	}
	defer os.Remove(tmp.Name())

	if err := Export(tmp, records); err != nil {
		tmp.Close()
		return apperrors.NewStoreError(BackendCSV, "write", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewStoreError(BackendCSV, "write", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.NewStoreError(BackendCSV, "write", err)
	}
	return nil
}

// Merge appends incoming to existing. An incoming record replaces any older
// record with the same key, and the replacement takes the later position.
func Merge(existing, incoming []models.HistoryRecord) []models.HistoryRecord {
	replaced := make(map[string]bool, len(incoming))
	for _, r := range incoming {
		replaced[r.Key()] = true
	}
	out := make([]models.HistoryRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if !replaced[r.Key()] {
			out = append(out, r)
		}
	}

	last := make(map[string]int, len(incoming))
	for i, r := range incoming {
		last[r.Key()] = i
	}
	for i, r := range incoming {
		if last[r.Key()] == i {
			out = append(out, r)
		}
	}
	return out
}

// Export writes records as CSV with a header row, UTF-8 with BOM so that
// spreadsheet tools pick up the Chinese names.
func Export(w io.Writer, records []models.HistoryRecord) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	rows := make([]*models.HistoryRecord, len(records))
	for i := range records {
		rows[i] = &records[i]
	}
	return gocsv.Marshal(&rows, w)
}

// Import reads records written by Export or by a spreadsheet. An empty input
// yields no records.
func Import(r io.Reader) ([]models.HistoryRecord, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	var rows []*models.HistoryRecord
	if err := gocsv.Unmarshal(br, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, err
	}
	records := make([]models.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			records = append(records, *row)
		}
	}
	return records, nil
}

// ImportInto loads r and saves every row with a known strategy into dst. It
// returns the number of rows saved and skipped.
func ImportInto(ctx context.Context, dst HistoryStore, r io.Reader) (saved, skipped int, err error) {
	records, err := Import(r)
	if err != nil {
		return 0, 0, apperrors.NewStoreError("import", "read", err)
	}
	valid := make([]models.HistoryRecord, 0, len(records))
	for _, rec := range records {
		if n, ok := normalize(rec); ok {
			valid = append(valid, n)
		} else {
			skipped++
		}
	}
	if err := dst.Save(ctx, valid); err != nil {
		return 0, skipped, err
	}
	return len(valid), skipped, nil
}
