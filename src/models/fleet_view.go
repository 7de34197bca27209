package models

// -----------------------------------------------------------------------------
// Fleet View (roster merged with telemetry)
// -----------------------------------------------------------------------------

type MBoatView struct {
	BoatID      string   `json:"boatId"`
	DisplayName string   `json:"displayName"`
	Nation      string   `json:"nation,omitempty"`
	JoinedAt    int64    `json:"joinedAt"`
	LastSeenAt  *int64   `json:"lastSeenAt,omitempty"`
	Live        bool     `json:"live"`
	AgeMs       *int64   `json:"ageMs,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	T           *int64   `json:"t,omitempty"`
	SOG         *float64 `json:"sog,omitempty"`
	COG         *float64 `json:"cog,omitempty"`
	Heading     *float64 `json:"heading,omitempty"`
	Heel        *float64 `json:"heel,omitempty"`
}

type MFleetView struct {
	RaceID string      `json:"raceId"`
	Now    int64       `json:"now"`
	Boats  []MBoatView `json:"boats"`
}

// -----------------------------------------------------------------------------
// Events pushed to subscribers
// -----------------------------------------------------------------------------

const (
	EventFullState   = "FULL_STATE"
	EventIncremental = "INCREMENTAL"
)

type MFleetEvent struct {
	Type   string      `json:"type"`
	RaceID string      `json:"raceId"`
	Now    int64       `json:"now"`
	Boats  []MBoatView `json:"boats,omitempty"`
	BoatID string      `json:"boatId,omitempty"`
	Boat   *MBoatView  `json:"boat,omitempty"`
}

// -----------------------------------------------------------------------------

type MRosterAck struct {
	RaceID     string `json:"raceId"`
	BoatID     string `json:"boatId"`
	RosterSize int    `json:"rosterSize"`
}

type MUpdateAck struct {
	RaceID string `json:"raceId"`
	BoatID string `json:"boatId"`
	T      int64  `json:"t"`
	Live   bool   `json:"live"`
}

// FullStateEvent wraps a fleet view as a FULL_STATE event.
func FullStateEvent(view *MFleetView) *MFleetEvent {
	return &MFleetEvent{
		Type:   EventFullState,
		RaceID: view.RaceID,
		Now:    view.Now,
		Boats:  view.Boats,
	}
}
