package store

// Gender classifies a session for the leaderboards. Auto-started sessions are
// created as GenderUnset until an operator names them.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderUnset  Gender = "U"
)

// Valid reports whether g is one of the three stored gender values.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderUnset
}

// Session is one tracked workout interval with its derived statistics.
// EndTS is nil while the session is still active; once set, the numeric
// fields are frozen.
type Session struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Gender   Gender  `json:"gender"`
	Date     string  `json:"date"` // local calendar day, YYYY-MM-DD
	StartTS  int64   `json:"start_ts"`
	EndTS    *int64  `json:"end_ts"`
	PeakW    float64 `json:"peak_w"`
	BestWh60 float64 `json:"best_wh60"`
	TotalWh  float64 `json:"total_wh"`
}

// Finished reports whether the session has been finalized.
func (s *Session) Finished() bool {
	return s.EndTS != nil
}

// Unsaved reports whether the session is anonymous and eligible for discard:
// no operator ever claimed it with a name and gender.
func (s *Session) Unsaved() bool {
	return s.Gender == GenderUnset || isBlank(s.Name)
}

// DaySummary aggregates one calendar day of sessions for the admin view.
type DaySummary struct {
	Date          string  `json:"date"`
	Sessions      int     `json:"sessions"`
	SessionsEnded int     `json:"sessions_ended"`
	TotalWh       float64 `json:"total_wh"`
	MaxPeakW      float64 `json:"max_peak_w"`
	MaxBestWh60   float64 `json:"max_best_wh60"`
}

// LeaderboardEntry is one row of a ranked board.
type LeaderboardEntry struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Gender   Gender  `json:"gender"`
	PeakW    float64 `json:"peak_w"`
	BestWh60 float64 `json:"best_wh60"`
	TotalWh  float64 `json:"total_wh,omitempty"`
}

// Leaderboard holds the four boards shown on the display: men and women,
// each ranked by best 60-second energy and by peak power.
type Leaderboard struct {
	Date       string             `json:"date,omitempty"`
	From       string             `json:"from,omitempty"`
	To         string             `json:"to,omitempty"`
	MenWh60    []LeaderboardEntry `json:"menWh60"`
	MenPeakW   []LeaderboardEntry `json:"menPeakW"`
	WomenWh60  []LeaderboardEntry `json:"womenWh60"`
	WomenPeakW []LeaderboardEntry `json:"womenPeakW"`
}

// EnergyTotals is the input for the stats endpoint.
type EnergyTotals struct {
	TodayWh float64
	AllWh   float64
}
