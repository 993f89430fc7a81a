// Package ingest converts a compressed MySQL extended-INSERT dump for a
// single table into a sequence of columnar shard files: it scans the
// CREATE TABLE header for the column list, streams VALUES tuples out of the
// INSERT statements with a single-pass byte scanner, and buffers decoded
// rows into bounded Parquet shards.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// LogicalType is the column type a MySQL type declaration is mapped to.
type LogicalType int

const (
	LogicalString LogicalType = iota
	LogicalInt64
	LogicalFloat64
)

func (t LogicalType) String() string {
	switch t {
	case LogicalInt64:
		return "Int64"
	case LogicalFloat64:
		return "Float64"
	default:
		return "string"
	}
}

// Column is one decoded CREATE TABLE column declaration.
type Column struct {
	Name string
	Type LogicalType
}

// TableSchema is the table name and ordered column list extracted from a
// dump's CREATE TABLE header.
type TableSchema struct {
	Name    string
	Columns []Column
}

var (
	createTableNamePattern = regexp.MustCompile("`(\\w+)`")
	columnDeclPattern      = regexp.MustCompile("^\\s*`(\\w+)`\\s+(\\S+)")
)

var skipColumnLinePrefixes = []string{"PRIMARY", "KEY", "UNIQUE", "INDEX", "CONSTRAINT", ")"}

// mysqlTypeToLogical maps the first type token of a column declaration (e.g.
// "int(11)", "varchar(255)", "binary(1)") to a LogicalType.
func mysqlTypeToLogical(mysqlType string) LogicalType {
	t := strings.ToLower(mysqlType)
	switch {
	case strings.HasPrefix(t, "int") || strings.HasPrefix(t, "bigint") ||
		strings.HasPrefix(t, "smallint") || strings.HasPrefix(t, "tinyint") ||
		strings.HasPrefix(t, "mediumint"):
		return LogicalInt64
	case strings.HasPrefix(t, "float") || strings.HasPrefix(t, "double") ||
		strings.HasPrefix(t, "decimal") || strings.HasPrefix(t, "numeric"):
		return LogicalFloat64
	case strings.HasPrefix(t, "binary"):
		// binary(1) encodes a 0/1 flag via a _binary 'x' literal.
		return LogicalInt64
	default:
		return LogicalString
	}
}

// ParseHeader streams r line by line until the first "INSERT INTO" line,
// extracting the table name from the preceding CREATE TABLE statement and
// its column declarations. Lines belonging to PRIMARY/KEY/UNIQUE/INDEX/
// CONSTRAINT clauses or the closing paren are skipped.
func ParseHeader(r io.Reader) (TableSchema, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var schema TableSchema
	inCreate := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(strings.TrimSpace(line), "INSERT INTO") {
			break
		}

		if strings.HasPrefix(strings.TrimSpace(line), "CREATE TABLE") {
			if m := createTableNamePattern.FindStringSubmatch(line); m != nil {
				schema.Name = m[1]
			}
			inCreate = true
			continue
		}

		if !inCreate {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if hasAnyPrefix(trimmed, skipColumnLinePrefixes) {
			if trimmed == ")" || strings.HasPrefix(trimmed, ")") {
				inCreate = false
			}
			continue
		}

		if m := columnDeclPattern.FindStringSubmatch(line); m != nil {
			schema.Columns = append(schema.Columns, Column{
				Name: m[1],
				Type: mysqlTypeToLogical(strings.TrimRight(m[2], ",")),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return TableSchema{}, fmt.Errorf("ingest: scan header: %w", err)
	}
	if len(schema.Columns) == 0 {
		return TableSchema{}, fmt.Errorf("ingest: no columns found before first INSERT")
	}
	return schema, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
