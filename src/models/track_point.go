package models

// MTrackPoint is one immutable historical position report.
type MTrackPoint struct {
	RaceID string   `json:"raceId" msgpack:"race_id"`
	BoatID string   `json:"boatId" msgpack:"boat_id"`
	T      int64    `json:"t" msgpack:"t"`
	Lat    float64  `json:"lat" msgpack:"lat"`
	Lon    float64  `json:"lon" msgpack:"lon"`
	SOG    *float64 `json:"sog,omitempty" msgpack:"sog"`
	COG    *float64 `json:"cog,omitempty" msgpack:"cog"`
	Name   string   `json:"name,omitempty" msgpack:"name"`
}
