package ingest

import (
	"strings"
	"testing"
)

func scanAll(t *testing.T, sql string, numCols int) [][]Value {
	t.Helper()
	s := NewScanner(strings.NewReader(sql), numCols)
	var rows [][]Value
	for {
		row, ok := s.Next()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	return rows
}

func TestScanner_SimpleRow(t *testing.T) {
	rows := scanAll(t, "INSERT INTO `t` VALUES (1,'hello',-2.5);\n", 3)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	want := []Value{{Valid: true, Str: "1"}, {Valid: true, Str: "hello"}, {Valid: true, Str: "-2.5"}}
	for i, v := range want {
		if rows[0][i] != v {
			t.Errorf("row[0][%d] = %+v, want %+v", i, rows[0][i], v)
		}
	}
}

func TestScanner_MultipleRowsInOneStatement(t *testing.T) {
	rows := scanAll(t, "INSERT INTO `t` VALUES (1,'a'),(2,'b'),(3,'c');\n", 2)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[2][1].Str != "c" {
		t.Errorf("rows[2][1] = %+v, want c", rows[2][1])
	}
}

func TestScanner_NullLiteral(t *testing.T) {
	rows := scanAll(t, "INSERT INTO `t` VALUES (1,NULL);\n", 2)
	if rows[0][1].Valid {
		t.Errorf("rows[0][1] = %+v, want Valid=false", rows[0][1])
	}
}

func TestScanner_EscapedQuoteAndBackslash(t *testing.T) {
	rows := scanAll(t, `INSERT INTO `+"`t`"+` VALUES (1,'it\'s a \\test\n');`+"\n", 2)
	want := "it's a \\test\n"
	if rows[0][1].Str != want {
		t.Errorf("rows[0][1].Str = %q, want %q", rows[0][1].Str, want)
	}
}

func TestScanner_EmbeddedCommaAndParenInString(t *testing.T) {
	rows := scanAll(t, "INSERT INTO `t` VALUES (1,'a, (nested) value');\n", 2)
	if rows[0][1].Str != "a, (nested) value" {
		t.Errorf("rows[0][1].Str = %q", rows[0][1].Str)
	}
}

func TestScanner_BinaryLiteral(t *testing.T) {
	rows := scanAll(t, "INSERT INTO `t` VALUES (1,_binary '1');\n", 2)
	if rows[0][1].Str != "1" {
		t.Errorf("rows[0][1].Str = %q, want 1", rows[0][1].Str)
	}
}

func TestScanner_SkipsTextBeforeFirstValuesKeyword(t *testing.T) {
	sql := "CREATE TABLE `t` (`a` int);\nLOCK TABLES `t` WRITE;\nINSERT INTO `t` VALUES (1);\nUNLOCK TABLES;\n"
	rows := scanAll(t, sql, 1)
	if len(rows) != 1 || rows[0][0].Str != "1" {
		t.Fatalf("rows = %+v, want a single row [1]", rows)
	}
}

func TestScanner_DropsRowsWithWrongColumnCount(t *testing.T) {
	s := NewScanner(strings.NewReader("INSERT INTO `t` VALUES (1,2),(1,2,3);\n"), 2)
	var rows [][]Value
	for {
		row, ok := s.Next()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (second row has wrong column count)", len(rows))
	}
	if s.BadRowCount() != 1 {
		t.Errorf("BadRowCount() = %d, want 1", s.BadRowCount())
	}
}

func TestScanner_WhitespaceAfterSeparatingComma(t *testing.T) {
	rows := scanAll(t, "INSERT INTO `t` VALUES (1, 'a', 2), (3,\t'b',\n4);\n", 3)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	want := [][]Value{
		{{Valid: true, Str: "1"}, {Valid: true, Str: "a"}, {Valid: true, Str: "2"}},
		{{Valid: true, Str: "3"}, {Valid: true, Str: "b"}, {Valid: true, Str: "4"}},
	}
	for i, row := range want {
		for j, v := range row {
			if rows[i][j] != v {
				t.Errorf("row[%d][%d] = %+v, want %+v", i, j, rows[i][j], v)
			}
		}
	}
}

func TestScanner_MultipleInsertStatements(t *testing.T) {
	sql := "INSERT INTO `t` VALUES (1);\nINSERT INTO `t` VALUES (2);\n"
	rows := scanAll(t, sql, 1)
	if len(rows) != 2 || rows[0][0].Str != "1" || rows[1][0].Str != "2" {
		t.Fatalf("rows = %+v", rows)
	}
}
