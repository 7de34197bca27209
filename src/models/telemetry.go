package models

// MTelemetrySample is the most recent known position and motion of one boat.
type MTelemetrySample struct {
	BoatID  string   `json:"boatId" msgpack:"boat_id"`
	Lat     float64  `json:"lat" msgpack:"lat"`
	Lon     float64  `json:"lon" msgpack:"lon"`
	T       int64    `json:"t" msgpack:"t"`
	SOG     *float64 `json:"sog,omitempty" msgpack:"sog"`
	COG     *float64 `json:"cog,omitempty" msgpack:"cog"`
	Heading *float64 `json:"heading,omitempty" msgpack:"heading"`
	Heel    *float64 `json:"heel,omitempty" msgpack:"heel"`
}
