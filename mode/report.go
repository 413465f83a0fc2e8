package mode

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/khaledhikmat/vs-track/pipeline"
	"github.com/khaledhikmat/vs-track/service/data"
)

const recentDetections = 10

// Report prints detection statistics for the configured camera over the
// configured window.
func Report(canxCtx context.Context, svcs pipeline.ServicesFactory, _ ...pipeline.Option) error {
	hours := max(svcs.CfgSvc.GetReportWindowHours(), 1)
	return writeReport(canxCtx, os.Stdout, svcs.DataSvc, svcs.CfgSvc.GetCamera().ID, hours, time.Now())
}

func writeReport(ctx context.Context, w io.Writer, datasvc data.IService, cameraID string, hours int, now time.Time) error {
	since := now.Add(-time.Duration(hours) * time.Hour)

	st, err := datasvc.Stats(ctx, cameraID, since)
	if err != nil {
		return err
	}
	recent, err := datasvc.QueryDetections(ctx, data.Query{CameraID: cameraID, Since: since, Limit: recentDetections})
	if err != nil {
		return err
	}

	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgYellow)
	good := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	title.Fprintf(w, "Detections for %s, last %dh\n", cameraID, hours)
	fmt.Fprintf(w, "  total:          %d\n", st.Total)
	fmt.Fprintf(w, "  unique (30s):   %d\n", st.UniqueEvents30s)
	good.Fprintf(w, "  verified:       %d\n", st.Verified)
	fmt.Fprintf(w, "  reduction:      %.1f%%\n", st.ReductionPct)

	title.Fprintln(w, "By class")
	for _, k := range sortedKeys(st.ByClass, true) {
		label.Fprintf(w, "  %-14s", k)
		fmt.Fprintf(w, "%d\n", st.ByClass[k])
	}

	title.Fprintln(w, "By hour")
	for _, k := range sortedKeys(st.ByHour, false) {
		label.Fprintf(w, "  %s:00", k)
		fmt.Fprintf(w, "  %d\n", st.ByHour[k])
	}

	title.Fprintln(w, "Recent")
	if len(recent) == 0 {
		dim.Fprintln(w, "  none")
	}
	for _, r := range recent {
		mark := dim.Sprint("-")
		if r.Verified {
			mark = good.Sprint("v")
		}
		fmt.Fprintf(w, "  %s %s %-8s %s\n", mark, r.Timestamp.Local().Format(time.DateTime), r.Label, r.Movement)
	}

	return nil
}

// sortedKeys orders by count descending when byCount is set, by key otherwise.
func sortedKeys(m map[string]int64, byCount bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if byCount && m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
