package models

// MRaceSnapshot is the persisted live state of one race. Both maps are stored as
// ordered (boatId, value) pairs so the in-memory maps rebuild exactly.
type MRaceSnapshot struct {
	Roster    []MRosterPair    `json:"roster" msgpack:"roster"`
	Telemetry []MTelemetryPair `json:"telemetry" msgpack:"telemetry"`
}

type MRosterPair struct {
	BoatID string       `json:"boatId" msgpack:"boat_id"`
	Entry  MRosterEntry `json:"entry" msgpack:"entry"`
}

type MTelemetryPair struct {
	BoatID string           `json:"boatId" msgpack:"boat_id"`
	Sample MTelemetrySample `json:"sample" msgpack:"sample"`
}
