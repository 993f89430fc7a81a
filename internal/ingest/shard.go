package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/compress"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
)

// DefaultBatchSize is the default number of rows buffered per shard before
// it is flushed to disk.
const DefaultBatchSize = 500_000

// ShardWriter buffers decoded rows for one table and flushes them into
// Parquet shards named "{table}_{index:03d}.parquet" once the configured
// batch size (DefaultBatchSize unless set) of rows accumulates. The final
// partial shard is flushed by Close.
type ShardWriter struct {
	table     string
	outputDir string
	schema    TableSchema
	arrowSchema *arrow.Schema
	batchSize int

	rows     [][]Value
	shardIdx int
	mem      memory.Allocator
}

// NewShardWriter builds a ShardWriter that writes to outputDir.
func NewShardWriter(table, outputDir string, schema TableSchema, batchSize int) *ShardWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ShardWriter{
		table:       table,
		outputDir:   outputDir,
		schema:      schema,
		arrowSchema: buildArrowSchema(schema),
		batchSize:   batchSize,
		mem:         memory.NewGoAllocator(),
	}
}

func buildArrowSchema(schema TableSchema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Columns))
	for i, col := range schema.Columns {
		var dt arrow.DataType
		switch col.Type {
		case LogicalInt64:
			dt = arrow.PrimitiveTypes.Int64
		case LogicalFloat64:
			dt = arrow.PrimitiveTypes.Float64
		default:
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// Add buffers one decoded row, flushing a shard first if the batch is full.
func (w *ShardWriter) Add(row []Value) error {
	w.rows = append(w.rows, row)
	if len(w.rows) >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Close flushes any remaining buffered rows as the final (possibly partial)
// shard.
func (w *ShardWriter) Close() error {
	if len(w.rows) == 0 {
		return nil
	}
	return w.flush()
}

// ShardCount returns how many shard files have been written so far.
func (w *ShardWriter) ShardCount() int { return w.shardIdx }

func (w *ShardWriter) flush() error {
	rec := w.buildRecord()
	defer rec.Release()

	path := filepath.Join(w.outputDir, fmt.Sprintf("%s_%03d.parquet", w.table, w.shardIdx))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ingest: create shard %s: %w", path, err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	writer, err := pqarrow.NewFileWriter(w.arrowSchema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("ingest: open parquet writer for %s: %w", path, err)
	}
	if err := writer.WriteBuffered(rec); err != nil {
		writer.Close()
		return fmt.Errorf("ingest: write shard %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("ingest: close shard %s: %w", path, err)
	}

	w.rows = w.rows[:0]
	w.shardIdx++
	return nil
}

// buildRecord coerces the buffered string tokens into the declared logical
// type per column: a numeric coercion failure becomes a null, not an error,
// since the source dump occasionally carries malformed legacy rows. String
// columns pass through unchanged.
func (w *ShardWriter) buildRecord() arrow.Record {
	bldr := array.NewRecordBuilder(w.mem, w.arrowSchema)
	defer bldr.Release()

	for colIdx, col := range w.schema.Columns {
		field := bldr.Field(colIdx)
		for _, row := range w.rows {
			if colIdx >= len(row) || !row[colIdx].Valid {
				field.AppendNull()
				continue
			}
			raw := row[colIdx].Str
			switch col.Type {
			case LogicalInt64:
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					field.AppendNull()
					continue
				}
				field.(*array.Int64Builder).Append(n)
			case LogicalFloat64:
				f, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					field.AppendNull()
					continue
				}
				field.(*array.Float64Builder).Append(f)
			default:
				field.(*array.StringBuilder).Append(raw)
			}
		}
	}

	return bldr.NewRecord()
}
