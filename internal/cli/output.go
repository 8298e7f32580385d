package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"odometer/internal/types"

	"github.com/dustin/go-humanize"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSeconds renders a duration in seconds as e.g. "1h2m5s"
func formatSeconds(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

// formatMeters renders a distance with an SI prefix, e.g. "1.5 km"
func formatMeters(m float64) string {
	return humanize.SIWithDigits(m, 2, "m")
}

func formatCount(n int64) string {
	return humanize.Comma(n)
}

func printMeasureHeader(w io.Writer, first string) {
	fmt.Fprintf(w, "%s\tKEYS\tMOUSE\tLEFT\tRIGHT\tMIDDLE\tSCROLL\n", first)
}

func printMeasures(w io.Writer, first string, m types.Measures) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		first,
		formatCount(m.KeyCount),
		formatMeters(m.MouseDistance),
		formatCount(m.LeftClicks),
		formatCount(m.RightClicks),
		formatCount(m.MiddleClicks),
		formatMeters(m.ScrollDistance),
	)
}
