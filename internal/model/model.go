package model

import "time"

// Event is a (possibly multi-day) occasion that owns timeline entries,
// e.g. a wedding weekend. Days are addressed by DayKey ("2006-01-02").
type Event struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	StartDate string    `yaml:"start_date" json:"start_date"`
	EndDate   string    `yaml:"end_date" json:"end_date"`
	Timezone  string    `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// RawEntry is a timeline entry as stored and as edited by users: wall-clock
// strings, with End optional.
type RawEntry struct {
	ID          string `yaml:"id" json:"id"`
	EventID     string `yaml:"event_id" json:"event_id"`
	DayKey      string `yaml:"day" json:"day"`
	Start       string `yaml:"start" json:"start"`
	End         string `yaml:"end,omitempty" json:"end,omitempty"`
	Title       string `yaml:"title" json:"title"`
	Location    string `yaml:"location,omitempty" json:"location,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Color       string `yaml:"color,omitempty" json:"color,omitempty"`

	// SourceID marks entries owned by a synced vendor feed. Empty for
	// entries created by hand.
	SourceID string `yaml:"source_id,omitempty" json:"source_id,omitempty"`
}

// TimelineEntry is the normalized form consumed by the layout engine.
// StartMinute and EndMinute count minutes since local midnight.
type TimelineEntry struct {
	ID          string `json:"id"`
	EventID     string `json:"event_id"`
	DayKey      string `json:"day"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Block is the on-screen placement of one entry.
type Block struct {
	Top          float64 `json:"top"`
	Height       float64 `json:"height"`
	WidthPercent float64 `json:"width_percent"`
	LeftPercent  float64 `json:"left_percent"`

	// Column is the entry's slot within its overlap group and Columns the
	// number of slots that group uses.
	Column  int `json:"column"`
	Columns int `json:"columns"`
}

// ChangeOp names what happened to a stored row.
type ChangeOp string

const (
	OpInsert   ChangeOp = "insert"
	OpUpdate   ChangeOp = "update"
	OpDelete   ChangeOp = "delete"
	OpExternal ChangeOp = "external"
)

// Change is a "something changed, refetch" signal. ID and EventID are set
// when known; OpExternal changes (file edited outside the process) carry
// neither.
type Change struct {
	Table   string   `json:"table"`
	Op      ChangeOp `json:"op"`
	ID      string   `json:"id,omitempty"`
	EventID string   `json:"event_id,omitempty"`
}

// Occurrence is a single concrete instance of a calendar item after
// recurrence expansion and timezone normalization.
type Occurrence struct {
	SourceID string
	UID      string

	// InstanceKey identifies one occurrence of a recurring item, derived
	// from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the display timezone.
	Start time.Time
	End   time.Time
}
