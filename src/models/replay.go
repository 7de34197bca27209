package models

const (
	ReplayModeSmooth = "smooth"
	ReplayModeStep   = "step"
)

// MReplayQuery describes one replay request. From and To are epoch ms.
type MReplayQuery struct {
	RaceID string  `json:"raceId"`
	From   int64   `json:"from"`
	To     int64   `json:"to"`
	Hz     float64 `json:"hz"`
	Mode   string  `json:"mode"`
}

type MReplayPoint struct {
	BoatID       string   `json:"boatId"`
	Name         string   `json:"name,omitempty"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	SOG          *float64 `json:"sog,omitempty"`
	COG          *float64 `json:"cog,omitempty"`
	SourceT      int64    `json:"sourceT"`
	Interpolated bool     `json:"interpolated"`
}

type MReplayFrame struct {
	T     int64          `json:"t"`
	Boats []MReplayPoint `json:"boats"`
}

type MReplayResult struct {
	RaceID  string         `json:"raceId"`
	From    int64          `json:"from"`
	To      int64          `json:"to"`
	Hz      float64        `json:"hz"`
	StepMs  int64          `json:"stepMs"`
	Mode    string         `json:"mode"`
	Clipped bool           `json:"clipped"`
	Frames  []MReplayFrame `json:"frames"`
}
