// Package session holds the core of the bridge: the rolling-window Recorder
// that turns an irregular power-sample stream into energy statistics, and the
// Controller that drives the single-active-session lifecycle around it.
package session

import (
	"math"

	"wattbridge/internal/store"
)

// windowMS is the span of the trailing energy window.
const windowMS = 60_000

// segment is one interval between two consecutive accepted samples. Power is
// modeled as a step function: the previously reported value holds until the
// next sample arrives.
type segment struct {
	startTS int64
	endTS   int64
	powerW  float64
	wh      float64
}

// Recorder maintains the statistics of one in-progress session with O(1)
// amortized work per sample: total energy, peak instantaneous power, and the
// best trailing 60-second energy seen so far. It does no I/O and is not safe
// for concurrent use; the Controller serializes access.
type Recorder struct {
	ID      int64
	Name    string
	Gender  store.Gender
	StartTS int64

	lastTS    int64 // 0 until the first sample is accepted
	lastPower float64

	peakW    float64
	totalWh  float64
	bestWh60 float64

	window   []segment
	windowWh float64
}

// NewRecorder starts a recorder for a freshly created session.
func NewRecorder(id int64, name string, gender store.Gender, startTS int64) *Recorder {
	return &Recorder{ID: id, Name: name, Gender: gender, StartTS: startTS}
}

// Record folds one (timestamp, power) sample into the statistics. Samples
// with negative or non-finite power, or a non-positive timestamp, are
// dropped. A sample whose timestamp does not advance past the previous one
// contributes no energy interval but still updates peak power and the held
// power level, matching the sensor bridge this replaces.
func (r *Recorder) Record(ts int64, powerW float64) {
	if !(powerW >= 0) || math.IsInf(powerW, 1) || ts <= 0 {
		return
	}

	if r.lastTS != 0 && ts > r.lastTS {
		dt := ts - r.lastTS
		wh := r.lastPower * float64(dt) / 3_600_000
		r.window = append(r.window, segment{startTS: r.lastTS, endTS: ts, powerW: r.lastPower, wh: wh})
		r.windowWh += wh
		r.totalWh += wh

		r.evict(ts - windowMS)

		if r.windowWh > r.bestWh60 {
			r.bestWh60 = r.windowWh
		}
	}

	if powerW > r.peakW {
		r.peakW = powerW
	}
	r.lastTS = ts
	r.lastPower = powerW
}

// evict drops segments that ended at or before cutoff and clips the first
// remaining segment if it straddles it.
func (r *Recorder) evict(cutoff int64) {
	i := 0
	for i < len(r.window) && r.window[i].endTS <= cutoff {
		r.windowWh -= r.window[i].wh
		i++
	}
	if i > 0 {
		r.window = append(r.window[:0], r.window[i:]...)
	}

	if len(r.window) > 0 {
		head := &r.window[0]
		if head.startTS < cutoff && head.endTS > cutoff {
			overlap := head.endTS - cutoff
			keepWh := head.powerW * float64(overlap) / 3_600_000
			r.windowWh -= head.wh
			head.startTS = cutoff
			head.wh = keepWh
			r.windowWh += keepWh
		}
	}
}

// Snapshot is the read-only view of a recorder's statistics, rounded for
// display and persistence.
type Snapshot struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Gender   store.Gender `json:"gender"`
	StartTS  int64        `json:"start_ts"`
	PeakW    float64      `json:"peak_w"`
	BestWh60 float64      `json:"best_wh60"`
	TotalWh  float64      `json:"total_wh"`
}

// Snapshot returns the current statistics with the maxima rounded to one
// decimal place. It has no side effects.
func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		ID:       r.ID,
		Name:     r.Name,
		Gender:   r.Gender,
		StartTS:  r.StartTS,
		PeakW:    round1(r.peakW),
		BestWh60: round1(r.bestWh60),
		TotalWh:  round1(r.totalWh),
	}
}

// round1 rounds to one decimal, halves away from zero.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
