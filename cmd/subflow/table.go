package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/oukeidos/subflow/internal/pipeline"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// printSummary writes the result of a session as a two-column table.
func printSummary(w io.Writer, result pipeline.Result) {
	rows := [][]string{
		{"Status", string(result.Status)},
		{"Translated", fmt.Sprintf("%d / %d", result.Translated, result.Total)},
	}
	if result.Model != "" {
		rows = append(rows, []string{"Model", result.Model})
	}
	if result.FailedBatches > 0 {
		rows = append(rows, []string{"Failed batches", strconv.Itoa(result.FailedBatches)})
	}
	if result.OutputPath != "" {
		rows = append(rows, []string{"Output", result.OutputPath})
	}
	if result.SessionPath != "" {
		rows = append(rows, []string{"Session log", result.SessionPath})
	}
	if result.ErrorMessage != "" {
		rows = append(rows, []string{"Last error", result.ErrorMessage})
	}
	rows = append(rows, []string{"Time", result.Elapsed.Round(time.Millisecond).String()})
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, nil))
}
