package scene

import (
	"fmt"
	"sort"
	"strings"

	"github.com/khaledhikmat/vs-track/model"
)

// Timeline renders the batch as a short text block for the verifier prompt.
func (b Batch) Timeline(cameraID string) string {
	lines := []string{
		fmt.Sprintf("Camera: %s | %s → %s UTC | %d objects",
			cameraID,
			b.PeriodStart.UTC().Format("15:04:05"),
			b.PeriodEnd.UTC().Format("15:04:05"),
			len(b.Events)),
	}

	counts := map[string]int{}
	for _, e := range b.Events {
		counts[e.Track.Class.String()]++
	}
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool {
		if counts[classes[i]] != counts[classes[j]] {
			return counts[classes[i]] > counts[classes[j]]
		}
		return classes[i] < classes[j]
	})
	seen := make([]string, len(classes))
	for i, c := range classes {
		seen[i] = fmt.Sprintf("%d×%s", counts[c], c)
	}
	lines = append(lines, "Seen: "+strings.Join(seen, ", "), "", "Timeline:")

	for i, e := range b.Events {
		lines = append(lines, fmt.Sprintf("  [%02d] %s %s: %s",
			i+1,
			e.FinishedAt.UTC().Format("15:04:05"),
			e.Track.Class,
			e.Movement.Description))
	}

	return strings.Join(lines, "\n")
}

// SelectCrops spreads up to maxCrops stills across events, at most 3 per
// event. When that yields fewer than minCrops, every crop is taken in order.
func (b Batch) SelectCrops(minCrops, maxCrops int) []model.CropSnapshot {
	if maxCrops <= 0 {
		return nil
	}

	perEvent := min(maxCrops/max(len(b.Events), 1)+1, 3)

	out := collectCrops(b.Events, perEvent, maxCrops)
	if len(out) < minCrops {
		out = collectCrops(b.Events, maxCrops, maxCrops)
	}
	return out
}

func collectCrops(events []Event, perEvent, limit int) []model.CropSnapshot {
	out := make([]model.CropSnapshot, 0, limit)
	for _, e := range events {
		for i, c := range e.Track.Crops {
			if i >= perEvent || len(out) >= limit {
				break
			}
			out = append(out, c)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}
