package question

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// ErrImportFormat is returned when an uploaded file cannot be read as one of
// the supported script formats. The message is user-visible.
var ErrImportFormat = errors.New("question: unsupported or malformed script file")

// ReadPrompts extracts raw question prompts from an uploaded script file.
// Supported formats, chosen by the filename extension:
//
//   - .docx: one prompt per non-empty paragraph
//   - .csv, .xlsx: first column values
//   - .json: array of strings, or object whose values are strings (sorted
//     by key for a deterministic order)
//
// Blank lines are dropped here; id assignment happens in Store.LoadScript.
func ReadPrompts(r io.Reader, filename string) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("question: read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrImportFormat)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx":
		return promptsFromDocx(data)
	case ".csv":
		return promptsFromCSV(data)
	case ".xlsx", ".xls":
		return promptsFromExcel(data)
	case ".json":
		return promptsFromJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrImportFormat, filepath.Ext(filename))
	}
}

// paragraph runs inside WordprocessingML.
var (
	docxParagraphSplit = regexp.MustCompile(`</w:p>`)
	docxTextRun        = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
)

func promptsFromDocx(data []byte) ([]string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %v", ErrImportFormat, err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()

	var prompts []string
	for _, para := range docxParagraphSplit.Split(content, -1) {
		var b strings.Builder
		for _, m := range docxTextRun.FindAllStringSubmatch(para, -1) {
			b.WriteString(m[1])
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			prompts = append(prompts, text)
		}
	}
	return prompts, nil
}

func promptsFromCSV(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var prompts []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv: %v", ErrImportFormat, err)
		}
		if len(record) > 0 {
			if text := strings.TrimSpace(record[0]); text != "" {
				prompts = append(prompts, text)
			}
		}
	}
	return prompts, nil
}

func promptsFromExcel(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrImportFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx: no sheets", ErrImportFormat)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrImportFormat, err)
	}

	var prompts []string
	for _, row := range rows {
		if len(row) > 0 {
			if text := strings.TrimSpace(row[0]); text != "" {
				prompts = append(prompts, text)
			}
		}
	}
	return prompts, nil
}

func promptsFromJSON(data []byte) ([]string, error) {
	var asArray []string
	if err := json.Unmarshal(data, &asArray); err == nil {
		return trimAll(asArray), nil
	}

	var asObject map[string]string
	if err := json.Unmarshal(data, &asObject); err == nil {
		keys := make([]string, 0, len(asObject))
		for k := range asObject {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, asObject[k])
		}
		return trimAll(out), nil
	}

	return nil, fmt.Errorf("%w: json: expected array of strings or object of strings", ErrImportFormat)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
