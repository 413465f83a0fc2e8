package tracker

import (
	"sort"

	"github.com/arthurkushman/go-hungarian"
)

// MatchingAlgorithm selects how detections are assigned to live tracks.
type MatchingAlgorithm string

const (
	// MatchGreedy takes candidate pairs in descending IoU order.
	MatchGreedy MatchingAlgorithm = "greedy"
	// MatchHungarian solves the optimal assignment on the IoU matrix.
	MatchHungarian MatchingAlgorithm = "hungarian"
)

type pair struct {
	track int
	det   int
	iou   float64
}

// greedyMatch keeps pairs at or above threshold and claims them in
// descending IoU order. Ties keep (track, detection) index order so the
// assignment is reproducible.
func greedyMatch(iou [][]float64, threshold float64) []pair {
	candidates := make([]pair, 0)
	for ti, row := range iou {
		for di, v := range row {
			if v >= threshold {
				candidates = append(candidates, pair{track: ti, det: di, iou: v})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].iou > candidates[j].iou
	})

	claimedTracks := make(map[int]struct{})
	claimedDets := make(map[int]struct{})
	matches := make([]pair, 0, len(candidates))
	for _, p := range candidates {
		if _, ok := claimedTracks[p.track]; ok {
			continue
		}
		if _, ok := claimedDets[p.det]; ok {
			continue
		}
		claimedTracks[p.track] = struct{}{}
		claimedDets[p.det] = struct{}{}
		matches = append(matches, p)
	}

	return matches
}

// hungarianMatch pads the IoU matrix to a square and maximises total IoU.
// Assignments below threshold are discarded afterwards.
func hungarianMatch(iou [][]float64, threshold float64) []pair {
	numTracks := len(iou)
	if numTracks == 0 || len(iou[0]) == 0 {
		return nil
	}
	numDets := len(iou[0])

	size := numTracks
	if numDets > size {
		size = numDets
	}
	padded := make([][]float64, size)
	for i := range padded {
		padded[i] = make([]float64, size)
		if i < numTracks {
			copy(padded[i], iou[i])
		}
	}

	matches := make([]pair, 0)
	for ti, row := range hungarian.SolveMax(padded) {
		for di := range row {
			if ti >= numTracks || di >= numDets {
				continue
			}
			if v := iou[ti][di]; v >= threshold {
				matches = append(matches, pair{track: ti, det: di, iou: v})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].track < matches[j].track
	})

	return matches
}
