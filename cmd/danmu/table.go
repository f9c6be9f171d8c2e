package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"danmu/internal/api"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const maxTitleWidth = 48

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

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

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:           i + 1,
			Align:            align,
			AlignHeader:      text.AlignLeft,
			WidthMax:         maxTitleWidth,
			WidthMaxEnforcer: text.Trim,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render() + "\n"
}

func jobRows(jobs []api.Job, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			job.Kind,
			job.Title,
			colorStatus(job.Status, colorize),
			formatPercent(job.Progress.Percent),
			shortTime(job.CreatedAt),
		})
	}
	return rows
}

func renderJobTable(jobs []api.Job, colorize bool) string {
	return renderTable(
		[]string{"ID", "Kind", "Title", "Status", "Progress", "Created"},
		jobRows(jobs, colorize),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.0f%%", value)
}

// shortTime trims an API timestamp to minute precision.
func shortTime(value string) string {
	if t, ok := api.ParseTime(value); ok {
		return t.Local().Format("2006-01-02 15:04")
	}
	return strings.TrimSpace(value)
}
