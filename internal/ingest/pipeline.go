package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkerPoolSize is how many small/medium tables are converted
// concurrently.
const DefaultWorkerPoolSize = 4

// TableResult is the outcome of converting one table's dump.
type TableResult struct {
	Table    string
	Rows     int
	Shards   int
	BadRows  int
	Elapsed  time.Duration
	Err      error
}

// Pipeline converts a set of per-table dump files into Parquet shards.
type Pipeline struct {
	source     Source
	outputDir  string
	batchSize  int
	poolSize   int
	largeTables map[string]bool
	logger     *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Pipeline)

// WithBatchSize overrides [DefaultBatchSize].
func WithBatchSize(n int) Option { return func(p *Pipeline) { p.batchSize = n } }

// WithPoolSize overrides [DefaultWorkerPoolSize].
func WithPoolSize(n int) Option { return func(p *Pipeline) { p.poolSize = n } }

// WithLargeTables marks tables that must be converted strictly sequentially,
// after the worker pool drains, to bound peak memory.
func WithLargeTables(names ...string) Option {
	return func(p *Pipeline) {
		for _, n := range names {
			p.largeTables[n] = true
		}
	}
}

// WithLogger overrides the default [slog.Default] logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// New builds a Pipeline reading dumps via source and writing shards to
// outputDir.
func New(source Source, outputDir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:      source,
		outputDir:   outputDir,
		batchSize:   DefaultBatchSize,
		poolSize:    DefaultWorkerPoolSize,
		largeTables: map[string]bool{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run converts every table in tables, small/medium tables concurrently up
// to the configured pool size, large tables sequentially afterward. It
// returns one TableResult per table in input order; a per-table failure is
// recorded in that table's result and does not abort the others.
func (p *Pipeline) Run(ctx context.Context, tables []string) []TableResult {
	var small, large []string
	for _, t := range tables {
		if p.largeTables[t] {
			large = append(large, t)
		} else {
			small = append(small, t)
		}
	}

	results := make(map[string]TableResult, len(tables))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.poolSize)
	resultCh := make(chan TableResult, len(small))
	for _, t := range small {
		t := t
		group.Go(func() error {
			resultCh <- p.convertOne(gctx, t)
			return nil
		})
	}
	_ = group.Wait()
	close(resultCh)
	for r := range resultCh {
		results[r.Table] = r
	}

	for _, t := range large {
		results[t] = p.convertOne(ctx, t)
	}

	ordered := make([]TableResult, len(tables))
	for i, t := range tables {
		ordered[i] = results[t]
	}
	return ordered
}

// convertOne runs the three phases for a single table: header scan, row
// streaming, and sharded writes. It never panics; any failure is captured
// in the returned TableResult's Err field.
func (p *Pipeline) convertOne(ctx context.Context, table string) TableResult {
	start := time.Now()
	result := TableResult{Table: table}

	headerStream, err := p.source.Open(ctx, table)
	if err != nil {
		result.Err = fmt.Errorf("ingest: %s: %w", table, err)
		return result
	}
	schema, err := ParseHeader(headerStream)
	headerStream.Close()
	if err != nil {
		result.Err = fmt.Errorf("ingest: %s: parse header: %w", table, err)
		return result
	}
	schema.Name = table

	rowStream, err := p.source.Open(ctx, table)
	if err != nil {
		result.Err = fmt.Errorf("ingest: %s: reopen for scan: %w", table, err)
		return result
	}
	defer rowStream.Close()

	scanner := NewScanner(rowStream, len(schema.Columns))
	writer := NewShardWriter(table, p.outputDir, schema, p.batchSize)

	rows := 0
	for {
		row, ok := scanner.Next()
		if !ok {
			break
		}
		if err := writer.Add(row); err != nil {
			result.Err = fmt.Errorf("ingest: %s: write shard: %w", table, err)
			return result
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		result.Err = fmt.Errorf("ingest: %s: scan: %w", table, err)
		return result
	}
	if err := writer.Close(); err != nil {
		result.Err = fmt.Errorf("ingest: %s: final flush: %w", table, err)
		return result
	}

	if scanner.BadRowCount() > 0 {
		p.logger.WarnContext(ctx, "ingest: dropped malformed rows", "table", table, "count", scanner.BadRowCount())
	}

	result.Rows = rows
	result.Shards = writer.ShardCount()
	result.BadRows = scanner.BadRowCount()
	result.Elapsed = time.Since(start)
	return result
}
