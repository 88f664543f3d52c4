package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/wippyai/hostbridge/runtime"
)

// renderStats writes a table of per-interpreter counters followed by the
// reclamation queue totals.
func renderStats(w io.Writer, rt *runtime.Runtime) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Interpreter", "ID", "Live", "Refs", "Pending", "Drained", "Stale", "Attaches", "Nested"})
	for _, i := range rt.Interpreters() {
		s := i.Stats()
		t.AppendRow(table.Row{s.Name, s.ID, s.Live, s.Refs, s.Pending, s.Drained, s.Stale, s.Attaches, s.Nested})
	}
	q := rt.QueueStats()
	t.AppendFooter(table.Row{"queue", "", "", "", q.Pending, q.Drained, q.Dropped, fmt.Sprintf("%d enqueued", q.Enqueued), ""})
	t.Render()
}
