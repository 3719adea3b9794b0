// SPDX-License-Identifier: MPL-2.0

package core

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportCSV renders a result as CSV. The header holds the keys in the order
// they first appear across rows. Rows are separated by \n without a
// trailing newline.
func ExportCSV(result *QueryResult) string {
	keys := result.Keys()
	if len(keys) == 0 {
		return ""
	}
	lines := make([]string, 0, len(result.Data)+1)
	header := make([]string, len(keys))
	for i, k := range keys {
		header[i] = escapeCSV(k)
	}
	lines = append(lines, strings.Join(header, ","))
	for _, row := range result.Data {
		record := make([]string, len(keys))
		for i, k := range keys {
			v, _ := row.Get(k)
			record[i] = escapeCSV(formatValue(v))
		}
		lines = append(lines, strings.Join(record, ","))
	}
	return strings.Join(lines, "\n")
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, "\",\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// formatValue converts a decoded json value to its display string
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExportXLSX writes a result as an Excel workbook with a bold, frozen header
// row. The whole file is rendered in memory; excelize has no streaming
// writer for styled sheets.
func ExportXLSX(result *QueryResult, writer io.Writer) error {
	xlsx := excelize.NewFile()
	defer xlsx.Close()
	sheetName := "Sheet1"

	headerStyle, err := xlsx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}
	styles := map[string]int{
		"number": createStyle(xlsx, &excelize.Style{
			Alignment: &excelize.Alignment{
				Horizontal: "right",
			},
		}),
		"text": createStyle(xlsx, &excelize.Style{
			Alignment: &excelize.Alignment{
				Horizontal: "left",
				WrapText:   true,
			},
		}),
	}

	keys := result.Keys()
	maxWidths := make([]float64, len(keys))
	for colIdx, key := range keys {
		cell, err := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err != nil {
			return fmt.Errorf("error converting coordinates: %w", err)
		}
		xlsx.SetCellValue(sheetName, cell, key)
		xlsx.SetCellStyle(sheetName, cell, cell, headerStyle)
		maxWidths[colIdx] = float64(len(key)) + 2
	}

	rowIdx := 2
	for _, row := range result.Data {
		for colIdx, key := range keys {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
			if err != nil {
				return fmt.Errorf("error converting coordinates: %w", err)
			}
			value, _ := row.Get(key)
			setCellValue(xlsx, sheetName, cell, value, styles)
			maxWidths[colIdx] = math.Max(maxWidths[colIdx], float64(len(formatValue(value)))+2)
		}
		rowIdx++
	}

	for colIdx := range keys {
		colName, err := excelize.ColumnNumberToName(colIdx + 1)
		if err != nil {
			return fmt.Errorf("error converting column number: %w", err)
		}
		// Clamp width between minimum of 6 and maximum of 100
		width := math.Max(6, math.Min(100, maxWidths[colIdx]))
		xlsx.SetColWidth(sheetName, colName, colName, width)
	}

	if len(keys) > 0 {
		lastCol, _ := excelize.ColumnNumberToName(len(keys))
		filterRange := fmt.Sprintf("A1:%s%d", lastCol, rowIdx-1)
		xlsx.AutoFilter(sheetName, filterRange, []excelize.AutoFilterOptions{})
	}

	xlsx.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return xlsx.Write(writer)
}

func setCellValue(xlsx *excelize.File, sheetName string, cell string, value any, styles map[string]int) {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			xlsx.SetCellValue(sheetName, cell, f)
			xlsx.SetCellStyle(sheetName, cell, cell, styles["number"])
			return
		}
	case float64, int, int64:
		xlsx.SetCellValue(sheetName, cell, v)
		xlsx.SetCellStyle(sheetName, cell, cell, styles["number"])
		return
	}
	xlsx.SetCellValue(sheetName, cell, formatValue(value))
	xlsx.SetCellStyle(sheetName, cell, cell, styles["text"])
}

func createStyle(xlsx *excelize.File, style *excelize.Style) int {
	styleID, _ := xlsx.NewStyle(style)
	return styleID
}
