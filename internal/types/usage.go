package types

// AppUsageStat is the focused-foreground time of one application inside an hour slot
type AppUsageStat struct {
	Date        string `json:"date" db:"date"`
	Hour        int    `json:"hour" db:"hour"`
	AppName     string `json:"appName" db:"app_name"`
	SecondsUsed int64  `json:"secondsUsed" db:"seconds_used"`
}

// AppUsageTotal is the summed usage of one application over a window
type AppUsageTotal struct {
	AppName string `json:"appName" db:"app_name"`
	Seconds int64  `json:"seconds" db:"total_seconds"` // in seconds
}

// MaxSecondsPerSlot caps seconds_used for a single (date, hour, app) slot
const MaxSecondsPerSlot = 3600
