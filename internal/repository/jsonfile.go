package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

var ErrStoreClosed = errors.New("store closed")

type appendRequest struct {
	record models.TokenRecord
	result chan error
}

// JSONFileStore keeps every record in one JSON array file. A single goroutine owns all
// writes; each append rewrites the file through a temp file and a rename, so readers
// always see either the old or the new array.
type JSONFileStore struct {
	path   string
	logger *logger.Logger
	now    func() time.Time

	requests chan appendRequest
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewJSONFileStore(path string, logger *logger.Logger) (*JSONFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &JSONFileStore{
		path:     path,
		logger:   logger,
		now:      time.Now,
		requests: make(chan appendRequest),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writer()

	logger.Info("Using JSON file store", "path", path)
	return s, nil
}

func (s *JSONFileStore) writer() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			req.result <- s.appendToFile(req.record)
		}
	}
}

// Append queues the record for the writer and waits for the write to finish.
func (s *JSONFileStore) Append(ctx context.Context, record *models.TokenRecord) error {
	if record == nil {
		return fmt.Errorf("nil record")
	}
	if !record.Complete() {
		return fmt.Errorf("record %s is missing a pool side", record.Signature)
	}

	req := appendRequest{record: *record, result: make(chan error, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *JSONFileStore) appendToFile(record models.TokenRecord) error {
	records, err := s.readFile()
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
			return fmt.Errorf("failed to read store: %w", err)
		}
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		s.logger.Warn("store file is corrupt, moving it aside", "path", s.path, "movedTo", aside, "error", err)
		if err := os.Rename(s.path, aside); err != nil {
			return fmt.Errorf("failed to move corrupt store aside: %w", err)
		}
		records = nil
	}

	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	s.logger.Debug("record stored", "signature", record.Signature, "total", len(records))
	return nil
}

// readFile returns the stored records. A missing file is an empty store.
func (s *JSONFileStore) readFile() ([]models.TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []models.TokenRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// load is the read path: any failure degrades to an empty set.
func (s *JSONFileStore) load() []models.TokenRecord {
	records, err := s.readFile()
	if err != nil {
		s.logger.Warn("failed to read store, treating as empty", "path", s.path, "error", err)
		return nil
	}
	return records
}

func (s *JSONFileStore) Latest(_ context.Context, limit int, maxAgeDays int) []models.TokenRecord {
	return latestWithin(s.load(), limit, windowStart(s.now(), maxAgeDays))
}

func (s *JSONFileStore) FindBySignature(_ context.Context, signature string, maxAgeDays int) *models.TokenRecord {
	since := windowStart(s.now(), maxAgeDays)
	return firstWithin(s.load(), since, func(r *models.TokenRecord) bool {
		return r.Signature == signature
	})
}

func (s *JSONFileStore) FindByAssetAddress(_ context.Context, address string, maxAgeDays int) *models.TokenRecord {
	since := windowStart(s.now(), maxAgeDays)
	return firstWithin(s.load(), since, func(r *models.TokenRecord) bool {
		return r.BaseAsset.Address == address
	})
}

// Close stops the writer. Appends issued afterwards fail with ErrStoreClosed.
func (s *JSONFileStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func windowStart(now time.Time, maxAgeDays int) time.Time {
	return now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
}

func latestWithin(records []models.TokenRecord, limit int, since time.Time) []models.TokenRecord {
	recent := make([]models.TokenRecord, 0, len(records))
	for _, r := range records {
		if !r.DetectedAt.Before(since) {
			recent = append(recent, r)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].DetectedAt.After(recent[j].DetectedAt)
	})
	if limit >= 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

func firstWithin(records []models.TokenRecord, since time.Time, match func(*models.TokenRecord) bool) *models.TokenRecord {
	for i := range records {
		r := &records[i]
		if match(r) && !r.DetectedAt.Before(since) {
			return r
		}
	}
	return nil
}
