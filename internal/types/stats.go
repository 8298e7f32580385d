package types

import "time"

// DateLayout is the storage format of every date column
const DateLayout = "2006-01-02"

// Measures is the measure set shared by daily and hourly rows
type Measures struct {
	KeyCount       int64   `json:"keyCount" db:"key_count"`
	MouseDistance  float64 `json:"mouseDistance" db:"mouse_distance"` // meters
	LeftClicks     int64   `json:"leftClicks" db:"left_clicks"`
	RightClicks    int64   `json:"rightClicks" db:"right_clicks"`
	MiddleClicks   int64   `json:"middleClicks" db:"middle_clicks"`
	ScrollDistance float64 `json:"scrollDistance" db:"scroll_distance"`
}

// IsZero reports whether no measure is set
func (m Measures) IsZero() bool {
	return m == Measures{}
}

// Add returns the element-wise sum of m and other
func (m Measures) Add(other Measures) Measures {
	return Measures{
		KeyCount:       m.KeyCount + other.KeyCount,
		MouseDistance:  m.MouseDistance + other.MouseDistance,
		LeftClicks:     m.LeftClicks + other.LeftClicks,
		RightClicks:    m.RightClicks + other.RightClicks,
		MiddleClicks:   m.MiddleClicks + other.MiddleClicks,
		ScrollDistance: m.ScrollDistance + other.ScrollDistance,
	}
}

// DailyStat is the daily rollup derived from hourly buckets
type DailyStat struct {
	Date string `json:"date" db:"date"`
	Measures
}

// HourlyStat is one (date, hour) bucket
type HourlyStat struct {
	Date string `json:"date" db:"date"`
	Hour int    `json:"hour" db:"hour"`
	Measures
}

// KeyStat counts presses of one physical key inside an hour bucket
type KeyStat struct {
	Date    string `json:"date" db:"date"`
	Hour    int    `json:"hour" db:"hour"`
	KeyCode string `json:"keyCode" db:"key_code"`
	Count   int64  `json:"count" db:"count"`
}

// KeyTotal is the summed press count of one key over a range
type KeyTotal struct {
	KeyCode string `json:"keyCode" db:"key_code"`
	Count   int64  `json:"count" db:"total"`
}

// Bucket is the (date, hour) grain used for raw event accumulation
type Bucket struct {
	Date string
	Hour int
}

// BucketOf returns the bucket of ts in loc
func BucketOf(ts time.Time, loc *time.Location) Bucket {
	local := ts.In(loc)
	return Bucket{Date: local.Format(DateLayout), Hour: local.Hour()}
}

// FormatDate formats the calendar day of t in loc
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// AddDays shifts a YYYY-MM-DD date by days calendar days
func AddDays(date string, days int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(DateLayout), nil
}

// PurgeResult describes one retention run
type PurgeResult struct {
	Skipped       bool             `json:"skipped"` // retention <= 0, nothing deleted
	RetentionDays int              `json:"retentionDays"`
	Cutoff        string           `json:"cutoff,omitempty"`
	Deleted       map[string]int64 `json:"deleted"`
}

// TotalDeleted sums the per-table delete counts
func (p PurgeResult) TotalDeleted() int64 {
	var total int64
	for _, n := range p.Deleted {
		total += n
	}
	return total
}
