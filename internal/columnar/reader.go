package columnar

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"songplays_etl/internal/storage"
)

// Row is a decoded record together with the partition it was read from.
type Row[R any] struct {
	Partition Partition
	Value     R
}

// Reader reads back tables written by Writer.
type Reader struct {
	store       storage.Store
	parallelism int64
	log         *logrus.Entry
}

func NewReader(store storage.Store, log *logrus.Entry) *Reader {
	return &Reader{store: store, parallelism: 4, log: log}
}

// ReadTable decodes every parquet file under table, in key order.
func ReadTable[R any](ctx context.Context, r *Reader, table string) ([]Row[R], error) {
	prefix := table + "/"
	objects, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var rows []Row[R]
	files := 0
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".parquet") {
			continue
		}
		values, err := readFile[R](ctx, r, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", r.store.URI(obj.Key), err)
		}
		part := ParsePartition(strings.TrimPrefix(obj.Key, prefix))
		for _, v := range values {
			rows = append(rows, Row[R]{Partition: part, Value: v})
		}
		files++
	}

	r.log.WithField("table", table).Infof("Read back %d rows from %d files", len(rows), files)
	return rows, nil
}

func readFile[R any](ctx context.Context, r *Reader, key string) ([]R, error) {
	body, err := r.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return nil, err
	}

	pf := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(pf, new(R), r.parallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	values := make([]R, int(pr.GetNumRows()))
	if len(values) == 0 {
		return nil, nil
	}
	if err := pr.Read(&values); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return values, nil
}
