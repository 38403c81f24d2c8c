package service

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type Column struct {
	Name string
	Type string // duckdb 类型
}

// Table 一张汇总表，同时写成 CSV、markdown 和 duckdb
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]interface{}
}

func (t *Table) header() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', 4, 64)
	default:
		return cast.ToString(val)
	}
}

// WriteCSV 写入 <dir>/<name>.csv
func (t *Table) WriteCSV(dir string) error {
	f, err := os.Create(filepath.Join(dir, t.Name+".csv"))
	if err != nil {
		return errors.Wrapf(err, "创建 %s.csv 失败", t.Name)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(t.header()); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, 0, len(row))
		for _, v := range row {
			record = append(record, formatCell(v))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Markdown 渲染为 markdown 表格
func (t *Table) Markdown() string {
	var sb strings.Builder
	sb.WriteString("## " + t.Name + "\n\n")
	header := t.header()
	sb.WriteString("| " + strings.Join(header, " | ") + " |\n")
	seps := make([]string, len(header))
	for i, c := range t.Columns {
		if c.Type == "VARCHAR" {
			seps[i] = "---"
		} else {
			seps[i] = "---:"
		}
	}
	sb.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, row := range t.Rows {
		cells := make([]string, 0, len(row))
		for _, v := range row {
			cells = append(cells, strings.ReplaceAll(formatCell(v), "|", `\|`))
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}
