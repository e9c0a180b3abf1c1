package simulate

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// RenderStandings writes standings as a table with one column per enabled
// criterion. The leader is highlighted when useColor is set.
func RenderStandings(w io.Writer, st types.Standings, criteria []model.Criterion, useColor bool) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	headers := []string{"Rank", "Contestant"}
	enabled := make([]model.Criterion, 0, len(criteria))
	for _, c := range criteria {
		if c.Enabled {
			enabled = append(enabled, c)
			headers = append(headers, fmt.Sprintf("%s (%d%%)", c.Name, c.Weight))
		}
	}
	headers = append(headers, "Total", "Judges", "Status")
	table.Header(headers)

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	lead := fmt.Sprint
	if useColor {
		lead = color.New(color.FgGreen, color.Bold).SprintFunc()
	}

	data := make([][]string, 0, len(st.Standings))
	for _, s := range st.Standings {
		row := []string{strconv.Itoa(s.Rank), s.Name}
		for _, c := range enabled {
			row = append(row, types.FormatScore(s.PerCriterionAverage[c.ID]))
		}
		row = append(row, strconv.FormatFloat(s.TotalWeighted, 'f', 2, 64), strconv.Itoa(s.JudgeCount), string(s.Status))
		if s.Leading {
			for i := range row {
				row[i] = lead(row[i])
			}
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	for _, warn := range st.Warnings {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warn.Message); err != nil {
			return err
		}
	}
	return nil
}
