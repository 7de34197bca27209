package models

// MRosterEntry is a registered competitor in one race.
// JoinedAt and LastSeenAt are epoch milliseconds; LastSeenAt stays nil until
// the first position report arrives.
type MRosterEntry struct {
	BoatID      string `json:"boatId" msgpack:"boat_id"`
	DisplayName string `json:"displayName" msgpack:"display_name"`
	Nation      string `json:"nation,omitempty" msgpack:"nation"`
	JoinedAt    int64  `json:"joinedAt" msgpack:"joined_at"`
	LastSeenAt  *int64 `json:"lastSeenAt,omitempty" msgpack:"last_seen_at"`
}
