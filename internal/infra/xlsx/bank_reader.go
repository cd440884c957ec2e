package xlsx

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"classroom-quiz-service/internal/domain"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of an .xlsx upload.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Columns of a global bank sheet, matched case-insensitively against the header row.
const (
	colID           = "id"
	colPrompt       = "prompt"
	colCorrectIndex = "correct_index"
	colCorrectValue = "correct_value"
	colDifficulty   = "difficulty"
	colExplanation  = "explanation"
	colTags         = "tags"
)

var choiceColumns = []string{"choice_a", "choice_b", "choice_c", "choice_d"}

// ReadBankFile reads global bank questions from the first sheet of an .xlsx file.
func ReadBankFile(path string) ([]domain.ExternalQuestion, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readBank(f)
}

// ReadBank is ReadBankFile for an uploaded workbook.
func ReadBank(r io.Reader) ([]domain.ExternalQuestion, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readBank(f)
}

func readBank(f *excelize.File) ([]domain.ExternalQuestion, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return []domain.ExternalQuestion{}, nil
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index[colPrompt]; !ok {
		return nil, fmt.Errorf("sheet %s: missing %q column", sheets[0], colPrompt)
	}

	out := make([]domain.ExternalQuestion, 0, len(rows)-1)
	for n, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if isBlank(row) {
			continue
		}

		q := domain.ExternalQuestion{
			ID:           cell(colID),
			Prompt:       cell(colPrompt),
			CorrectValue: cell(colCorrectValue),
			Difficulty:   cell(colDifficulty),
			Explanation:  cell(colExplanation),
		}
		for _, col := range choiceColumns {
			if v := cell(col); v != "" {
				q.Choices = append(q.Choices, v)
			}
		}
		if raw := cell(colCorrectIndex); raw != "" {
			idx, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: correct_index %q: %w", n+2, raw, err)
			}
			q.CorrectIndex = &idx
		}
		for _, tag := range strings.Split(cell(colTags), ";") {
			if tag = strings.TrimSpace(tag); tag != "" {
				q.Tags = append(q.Tags, tag)
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
