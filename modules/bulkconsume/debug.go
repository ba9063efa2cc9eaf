package bulkconsume

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// renderDebugTable renders a range-discovery probe trace as a
// human-readable table, for the optional debug-info query parameter.
func renderDebugTable(trace []ProbeTrace) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"step", "from", "to/position", "total", "verdict"})

	for _, p := range trace {
		t.AppendRow(table.Row{p.Step, p.From, p.To, p.Total, p.Verdict})
	}

	t.AppendSeparator()
	return t.Render()
}
