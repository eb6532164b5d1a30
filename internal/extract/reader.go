// Package extract reads newline-delimited JSON source records from a store.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"songplays_etl/internal/model"
	"songplays_etl/internal/storage"
)

var (
	ErrNoInputFiles    = errors.New("no JSON input files found")
	ErrMalformedRecord = errors.New("malformed record")
	ErrMissingField    = errors.New("missing required field")
)

// Reader lists JSON files under a prefix and decodes them concurrently.
type Reader struct {
	store   storage.Store
	workers int
	log     *logrus.Entry
}

func NewReader(store storage.Store, workers int, log *logrus.Entry) *Reader {
	if workers < 1 {
		workers = 1
	}
	return &Reader{store: store, workers: workers, log: log}
}

// SongRecords reads every song-catalog record under prefix.
func (r *Reader) SongRecords(ctx context.Context, prefix string) ([]model.SongRecord, error) {
	return readAll(ctx, r, prefix, validateSong)
}

// LogEvents reads every activity-log event under prefix.
func (r *Reader) LogEvents(ctx context.Context, prefix string) ([]model.LogEvent, error) {
	return readAll(ctx, r, prefix, validateEvent)
}

func validateSong(s *model.SongRecord) error {
	switch {
	case s.SongID == "":
		return fmt.Errorf("%w: song_id", ErrMissingField)
	case s.ArtistID == "":
		return fmt.Errorf("%w: artist_id", ErrMissingField)
	case s.Title == "":
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	return nil
}

func validateEvent(e *model.LogEvent) error {
	switch {
	case e.Page == "":
		return fmt.Errorf("%w: page", ErrMissingField)
	case e.TS == 0:
		return fmt.Errorf("%w: ts", ErrMissingField)
	case e.IsSongPlay() && e.UserID == "":
		return fmt.Errorf("%w: userId", ErrMissingField)
	}
	return nil
}

// readAll fans the files out over a bounded set of goroutines and returns the
// records in key order, then in order within each file. The first failure
// cancels the remaining reads.
func readAll[T any](ctx context.Context, r *Reader, prefix string, validate func(*T) error) ([]T, error) {
	log := r.log.WithField("prefix", prefix)
	log.Infof("Listing JSON files under %s", r.store.URI(prefix))

	objects, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, ".json") {
			keys = append(keys, obj.Key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoInputFiles, r.store.URI(prefix))
	}
	log.Infof("Found %d JSON files to read", len(keys))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]T, len(keys))
	semaphore := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	processed := 0

	for i, key := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if ctx.Err() != nil {
				return
			}

			records, err := readFile(ctx, r.store, k, validate)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results[i] = records
			processed++
			if processed%100 == 0 {
				log.Debugf("Progress: %d/%d files read", processed, len(keys))
			}
		}(i, key)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, rs := range results {
		total += len(rs)
	}
	out := make([]T, 0, total)
	for _, rs := range results {
		out = append(out, rs...)
	}

	log.Infof("Parsed %d records from %d files", len(out), len(keys))
	return out, nil
}

func readFile[T any](ctx context.Context, store storage.Store, key string, validate func(*T) error) ([]T, error) {
	body, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	records, err := decode(body, validate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", store.URI(key), err)
	}
	return records, nil
}

// decode reads a stream of JSON objects, one per line or simply concatenated.
func decode[T any](r io.Reader, validate func(*T) error) ([]T, error) {
	dec := json.NewDecoder(r)
	var records []T
	for n := 1; ; n++ {
		var rec T
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w: %v", n, ErrMalformedRecord, err)
		}
		if err := validate(&rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		records = append(records, rec)
	}
}
