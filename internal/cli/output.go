package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/weiawesome/fin-dashboard/internal/domain"
)

var (
	faint  = color.New(color.Faint)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatMessage(m domain.Message) string {
	ts := m.Timestamp.Local().Format(time.TimeOnly)
	switch m.Type {
	case domain.MessageJoin:
		return faint.Sprintf("[%s] * %s joined", ts, m.Sender)
	case domain.MessageLeave:
		return faint.Sprintf("[%s] * %s left", ts, m.Sender)
	}

	line := fmt.Sprintf("[%s] %s: %s", ts, m.Sender, m.Content)
	switch {
	case m.Pending() && m.Confirmation.SendStatus == domain.SendStatusDelayed:
		return line + yellow.Sprint(" (delayed)")
	case m.Pending():
		return line + faint.Sprint(" (sending)")
	}
	return line
}
