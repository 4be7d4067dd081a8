package cli

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"ell-intel-api/internal/application/retrieval"
)

// Table 表头 + 数据行
type Table struct {
	Header []string
	Rows   [][]string
}

// Record 第 i 行转为 列名 -> 去空白后的值，空值不出现
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.Header))
	row := t.Rows[i]
	for j, col := range t.Header {
		if col == "" || j >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[j]); v != "" {
			rec[col] = v
		}
	}
	return rec
}

// ReadTable 按扩展名读取 .csv 或 .xlsx；sheet 为空时取第一张表
func ReadTable(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path, sheet)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return newTable(records)
}

func readXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return newTable(rows)
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("file has no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Header: header, Rows: records[1:]}, nil
}

// 单独成行的字段，其余字段按表头顺序以 "Key: value" 追加
var leadingFields = map[string]bool{
	"first_name":  true,
	"last_name":   true,
	"email":       true,
	"customer_id": true,
}

// RowText 把一行客户数据转为可检索文本
func RowText(header []string, rec map[string]string) string {
	var lines []string
	if name := strings.TrimSpace(rec["first_name"] + " " + rec["last_name"]); name != "" {
		lines = append(lines, "Customer: "+name)
	}
	if v := rec["email"]; v != "" {
		lines = append(lines, "Email: "+v)
	}
	if v := rec["customer_id"]; v != "" {
		lines = append(lines, "Customer ID: "+v)
	}
	for _, col := range header {
		if leadingFields[col] {
			continue
		}
		if v := rec[col]; v != "" {
			lines = append(lines, fieldLabel(col)+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// fieldLabel total_spent -> Total Spent
func fieldLabel(col string) string {
	words := strings.FieldsFunc(col, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// BuildDocuments 每 batchSize 行一批，来源为 <source>-batch-<n>。
// 同一来源重复导入会先删除该来源的旧切片。
func BuildDocuments(t *Table, source, fileName string, batchSize int) [][]retrieval.Document {
	if batchSize <= 0 {
		batchSize = len(t.Rows)
	}
	var batches [][]retrieval.Document
	for start := 0; start < len(t.Rows); start += batchSize {
		end := min(start+batchSize, len(t.Rows))
		batchSource := fmt.Sprintf("%s-batch-%d", source, len(batches)+1)
		docs := make([]retrieval.Document, 0, end-start)
		for i := start; i < end; i++ {
			rec := t.Record(i)
			text := RowText(t.Header, rec)
			if text == "" {
				continue
			}
			meta := make(map[string]any, len(rec)+2)
			for k, v := range rec {
				meta[k] = v
			}
			meta["row_number"] = i + 1
			meta["csv_source"] = fileName
			docs = append(docs, retrieval.Document{Source: batchSource, Content: text, Metadata: meta})
		}
		if len(docs) > 0 {
			batches = append(batches, docs)
		}
	}
	return batches
}
