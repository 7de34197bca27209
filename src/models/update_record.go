package models

// -----------------------------------------------------------------------------
// Canonical Update Record
// Every inbound adapter normalizes its payload into this shape.
// -----------------------------------------------------------------------------

type MUpdateRecord struct {
	RaceID      string   `json:"raceId" validate:"notblank"`
	BoatID      string   `json:"boatId" validate:"notblank"`
	DisplayName string   `json:"displayName,omitempty"`
	Lat         float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lon         float64  `json:"lon" validate:"gte=-180,lte=180"`
	T           int64    `json:"t"`
	SOG         *float64 `json:"sog,omitempty"`
	COG         *float64 `json:"cog,omitempty"`
	Heading     *float64 `json:"heading,omitempty"`
	Heel        *float64 `json:"heel,omitempty"`
}

// -----------------------------------------------------------------------------

// Sample extracts the telemetry part of the record.
func (r MUpdateRecord) Sample() MTelemetrySample {
	return MTelemetrySample{
		BoatID:  r.BoatID,
		Lat:     r.Lat,
		Lon:     r.Lon,
		T:       r.T,
		SOG:     CloneFloat(r.SOG),
		COG:     CloneFloat(r.COG),
		Heading: CloneFloat(r.Heading),
		Heel:    CloneFloat(r.Heel),
	}
}

// -----------------------------------------------------------------------------

// TrackPoint builds the historical record appended for this update.
func (r MUpdateRecord) TrackPoint(name string) MTrackPoint {
	return MTrackPoint{
		RaceID: r.RaceID,
		BoatID: r.BoatID,
		T:      r.T,
		Lat:    r.Lat,
		Lon:    r.Lon,
		SOG:    CloneFloat(r.SOG),
		COG:    CloneFloat(r.COG),
		Name:   name,
	}
}

// -----------------------------------------------------------------------------

// Float returns a pointer to v, for optional record fields.
func Float(v float64) *float64 {
	return &v
}

// CloneFloat copies an optional value so the copy shares no memory with the original.
func CloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
