package model

import "time"

// Emission remembers the last alert sent for a ticker.
type Emission struct {
	Score  int       `json:"score"`
	Action Action    `json:"action"`
	At     time.Time `json:"at"`
}

// GateState is the notification gate's persistent state.
type GateState struct {
	Active       bool                `json:"active"`
	Day          string              `json:"day"`
	EmittedToday int                 `json:"emitted_today"`
	LastEmitted  map[string]Emission `json:"last_emitted"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
