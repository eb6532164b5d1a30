package columnar

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"songplays_etl/internal/storage"
)

const (
	// SuccessMarker is written last, once every part file of a table is in place.
	SuccessMarker = "_SUCCESS"

	flushEvery = 100000
)

// WriteResult summarises one table write.
type WriteResult struct {
	Table      string
	Rows       int
	Files      int
	Bytes      int64
	Partitions int
}

// Writer writes tables as partitioned, SNAPPY-compressed parquet files. Each
// file is built in a local temp directory and then uploaded to the store.
type Writer struct {
	store       storage.Store
	tempDir     string
	workers     int
	runID       string
	parallelism int64
	log         *logrus.Entry
}

func NewWriter(store storage.Store, tempDir string, workers int, runID string, log *logrus.Entry) *Writer {
	if workers < 1 {
		workers = 1
	}
	return &Writer{
		store:       store,
		tempDir:     tempDir,
		workers:     workers,
		runID:       runID,
		parallelism: 4,
		log:         log,
	}
}

type group[R any] struct {
	partition Partition
	rows      []R
}

// WriteTable replaces table with rows. split maps each row to its partition
// and the record stored in the parquet file. One part file is written per
// partition; the table's previous contents are removed first.
func WriteTable[T, R any](ctx context.Context, w *Writer, table string, rows []T, split func(T) (Partition, R)) (WriteResult, error) {
	log := w.log.WithField("table", table)
	result := WriteResult{Table: table}
	prefix := table + "/"

	log.Infof("Overwriting %s", w.store.URI(prefix))
	if err := w.store.DeletePrefix(ctx, prefix); err != nil {
		return result, err
	}

	groups := make(map[string]*group[R])
	var order []string
	for _, row := range rows {
		p, rec := split(row)
		key := p.Path()
		g, ok := groups[key]
		if !ok {
			g = &group[R]{partition: p}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, rec)
	}
	log.Infof("Writing %d rows across %d partitions", len(rows), len(order))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	semaphore := make(chan struct{}, w.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, key := range order {
		wg.Add(1)
		go func(idx int, partKey string, g *group[R]) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			if ctx.Err() != nil {
				return
			}

			fileKey := path.Join(table, partKey, fmt.Sprintf("part-%05d-%s.snappy.parquet", idx, w.runID))
			size, err := writeFileAndUpload(ctx, w, fileKey, g.rows)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("table %s partition %q: %w", table, partKey, err)
					cancel()
				}
				return
			}
			result.Files++
			result.Rows += len(g.rows)
			result.Bytes += size
		}(i, key, groups[key])
	}

	wg.Wait()
	if firstErr != nil {
		return result, firstErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.Partitions = len(order)

	if err := w.store.Upload(ctx, path.Join(table, SuccessMarker), strings.NewReader(""), nil); err != nil {
		return result, fmt.Errorf("failed to write %s marker for %s: %w", SuccessMarker, table, err)
	}

	log.WithFields(logrus.Fields{
		"rows":  result.Rows,
		"files": result.Files,
		"bytes": result.Bytes,
	}).Infof("Table %s written", table)
	return result, nil
}

func writeFileAndUpload[R any](ctx context.Context, w *Writer, key string, rows []R) (int64, error) {
	log := w.log.WithField("key", key)
	localFileName := filepath.Join(w.tempDir, fmt.Sprintf("temp_%d_%s", time.Now().UnixNano(), strings.ReplaceAll(key, "/", "_")))
	defer func() {
		if err := os.Remove(localFileName); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to remove temp file %s: %v", localFileName, err)
		}
	}()

	fw, err := local.NewLocalFileWriter(localFileName)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(R), w.parallelism)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, rec := range rows {
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return 0, fmt.Errorf("error writing record %d: %w", i, err)
		}
		// Flush periodically for large partitions
		if (i+1)%flushEvery == 0 {
			log.Debugf("Written %d/%d records", i+1, len(rows))
			if err := pw.Flush(true); err != nil {
				fw.Close()
				return 0, fmt.Errorf("error flushing row group: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return 0, fmt.Errorf("error in WriteStop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("error closing file writer: %w", err)
	}

	fileInfo, err := os.Stat(localFileName)
	if err != nil {
		return 0, fmt.Errorf("failed to get file info: %w", err)
	}

	file, err := os.Open(localFileName)
	if err != nil {
		return 0, fmt.Errorf("failed to open temp file for upload: %w", err)
	}
	defer file.Close()

	err = w.store.Upload(ctx, key, file, map[string]string{
		"record-count": strconv.Itoa(len(rows)),
		"etl-run-id":   w.runID,
	})
	if err != nil {
		return 0, err
	}

	log.Debugf("Uploaded %d records (%d bytes)", len(rows), fileInfo.Size())
	return fileInfo.Size(), nil
}
