package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/acquirer"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(title string, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if title != "" {
		tw.SetTitle(title)
	}

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

type countRow struct {
	label string
	count int
}

func renderCounts(title string, counts []countRow) string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.label, strconv.Itoa(c.count)})
	}
	return renderTable(title, []string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderSummary(sum acquirer.Summary) string {
	var rows []countRow
	for _, o := range []panorama.Outcome{
		panorama.OutcomeSuccess,
		panorama.OutcomeFallbackSuccess,
		panorama.OutcomeFailure,
		panorama.OutcomeSkipped,
	} {
		rows = append(rows, countRow{o.String(), sum.Count(o)})
	}
	rows = append(rows, countRow{"total", sum.Total})

	title := fmt.Sprintf("Panoramas (%d/%d in %s)", sum.Completed(), sum.Total, sum.Elapsed.Round(time.Second))
	return renderCounts(title, rows)
}

func renderStatus(report acquirer.StatusReport) string {
	rows := make([]countRow, 0, len(acquirer.States)+1)
	for _, st := range acquirer.States {
		rows = append(rows, countRow{st.String(), report.Counts[st]})
	}
	rows = append(rows, countRow{"total", report.Total()})
	return renderCounts("Ledger status", rows)
}
