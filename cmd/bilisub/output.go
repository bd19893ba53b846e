package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"bilisub/internal/queue"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rows with rounded borders on a terminal and plain
// ASCII borders when piped.
func renderTable(w io.Writer, headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	if isTerminal(w) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// colorStatus tints a task status when writing to a terminal.
func colorStatus(w io.Writer, status queue.Status) string {
	label := string(status)
	if !isTerminal(w) {
		return label
	}
	switch status {
	case queue.StatusCompleted:
		return text.FgGreen.Sprint(label)
	case queue.StatusFailed:
		return text.FgRed.Sprint(label)
	case queue.StatusCancelled:
		return text.FgYellow.Sprint(label)
	case queue.StatusProcessing:
		return text.FgBlue.Sprint(label)
	default:
		return label
	}
}

// colorCheck renders a pass/fail marker for doctor output.
func colorCheck(w io.Writer, passed, optional bool) string {
	label, color := "OK", text.FgGreen
	switch {
	case passed:
	case optional:
		label, color = "WARN", text.FgYellow
	default:
		label, color = "FAIL", text.FgRed
	}
	if !isTerminal(w) {
		return label
	}
	return color.Sprint(label)
}
