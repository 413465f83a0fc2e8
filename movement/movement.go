// Package movement turns a completed track's position history into a short
// direction, speed and zone narrative.
package movement

import (
	"fmt"
	"math"

	"github.com/khaledhikmat/vs-track/model"
)

// Thresholds are in normalised frame units.
const (
	StationaryEpsilon = 0.02
	SlowSpeed         = 0.10
	ModerateSpeed     = 0.30
	ZoneLow           = 0.33
	ZoneHigh          = 0.66
	MinDurationSecs   = 0.1
)

const (
	Stationary = "stationary"
	Slow       = "slow"
	Moderate   = "moderate"
	Fast       = "fast"
)

// Analyse is pure: the same track always yields the same summary.
func Analyse(t model.CompletedTrack) model.MovementSummary {
	if len(t.Positions) < 2 {
		zone := "centre"
		if len(t.Positions) == 1 {
			zone = Zone(t.Positions[0].Center())
		}
		return model.MovementSummary{
			Description:  fmt.Sprintf("stationary %s", t.Class),
			Direction:    Stationary,
			SpeedLabel:   Stationary,
			EntryZone:    zone,
			ExitZone:     zone,
			DurationSecs: 0,
		}
	}

	fx, fy := t.Positions[0].Center()
	lx, ly := t.Positions[len(t.Positions)-1].Center()
	dx, dy := lx-fx, ly-fy
	distance := math.Hypot(dx, dy)

	duration := t.LastSeen.Sub(t.FirstSeen).Seconds()
	if duration < MinDurationSecs {
		duration = MinDurationSecs
	}

	direction := Stationary
	if distance >= StationaryEpsilon {
		direction = Direction(dx, dy)
	}

	entry := Zone(fx, fy)
	exit := Zone(lx, ly)

	var description string
	if direction == Stationary {
		description = fmt.Sprintf("stationary %s, %s, %.1fs", t.Class, entry, duration)
	} else {
		description = fmt.Sprintf("moving %s, %s→%s, %.1fs", direction, entry, exit, duration)
	}

	return model.MovementSummary{
		Description:  description,
		Direction:    direction,
		SpeedLabel:   SpeedLabel(distance / duration),
		EntryZone:    entry,
		ExitZone:     exit,
		DurationSecs: duration,
	}
}

// Direction maps a displacement to one of 8 octants. Image y grows downwards
// so a positive dy is "down".
func Direction(dx, dy float64) string {
	deg := math.Atan2(dy, dx) * 180 / math.Pi
	switch {
	case deg >= -22.5 && deg < 22.5:
		return "right"
	case deg >= 22.5 && deg < 67.5:
		return "lower-right"
	case deg >= 67.5 && deg < 112.5:
		return "down"
	case deg >= 112.5 && deg < 157.5:
		return "lower-left"
	case deg >= 157.5 || deg <= -157.5:
		return "left"
	case deg > -157.5 && deg < -112.5:
		return "upper-left"
	case deg >= -112.5 && deg < -67.5:
		return "up"
	default:
		return "upper-right"
	}
}

func SpeedLabel(speed float64) string {
	switch {
	case speed < StationaryEpsilon:
		return Stationary
	case speed < SlowSpeed:
		return Slow
	case speed < ModerateSpeed:
		return Moderate
	default:
		return Fast
	}
}

// Zone places a normalised point on a 3x3 grid. The middle cell is "centre".
func Zone(x, y float64) string {
	vertical := "lower"
	if y < ZoneLow {
		vertical = "upper"
	} else if y < ZoneHigh {
		vertical = "centre"
	}

	horizontal := "right"
	if x < ZoneLow {
		horizontal = "left"
	} else if x < ZoneHigh {
		horizontal = "centre"
	}

	if vertical == "centre" && horizontal == "centre" {
		return "centre"
	}
	return vertical + "-" + horizontal
}

// Tag is the compact form stored alongside a detection record.
func Tag(s model.MovementSummary, class model.ObjectClass) string {
	return fmt.Sprintf("%s %s %s→%s %.1fs", class, s.Direction, s.EntryZone, s.ExitZone, s.DurationSecs)
}
