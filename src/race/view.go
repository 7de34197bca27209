package race

import (
	"sort"

	"regatta-live/src/models"
)

// DefaultStaleAfterMs is the window within which a boat counts as live.
const DefaultStaleAfterMs int64 = 120_000

// boatView merges a roster entry with its telemetry sample, if any.
func boatView(entry models.MRosterEntry, sample *models.MTelemetrySample, nowMs, staleAfterMs int64) models.MBoatView {
	view := models.MBoatView{
		BoatID:      entry.BoatID,
		DisplayName: entry.DisplayName,
		Nation:      entry.Nation,
		JoinedAt:    entry.JoinedAt,
	}

	if entry.LastSeenAt != nil {
		seen := *entry.LastSeenAt
		age := nowMs - seen
		view.LastSeenAt = &seen
		view.AgeMs = &age
		view.Live = age <= staleAfterMs
	}

	if sample != nil {
		lat, lon, t := sample.Lat, sample.Lon, sample.T
		view.Lat = &lat
		view.Lon = &lon
		view.T = &t
		view.SOG = models.CloneFloat(sample.SOG)
		view.COG = models.CloneFloat(sample.COG)
		view.Heading = models.CloneFloat(sample.Heading)
		view.Heel = models.CloneFloat(sample.Heel)
	}

	return view
}

// sortBoats orders live boats first, then by display name, then by boat id.
func sortBoats(boats []models.MBoatView) {
	sort.SliceStable(boats, func(i, j int) bool {
		if boats[i].Live != boats[j].Live {
			return boats[i].Live
		}
		if boats[i].DisplayName != boats[j].DisplayName {
			return boats[i].DisplayName < boats[j].DisplayName
		}
		return boats[i].BoatID < boats[j].BoatID
	})
}

// fleetView builds the full merged view of a race at nowMs.
func fleetView(raceID string, roster map[string]models.MRosterEntry, telemetry map[string]models.MTelemetrySample, nowMs, staleAfterMs int64) *models.MFleetView {
	boats := make([]models.MBoatView, 0, len(roster))
	for boatID, entry := range roster {
		var sample *models.MTelemetrySample
		if s, ok := telemetry[boatID]; ok {
			sample = &s
		}
		boats = append(boats, boatView(entry, sample, nowMs, staleAfterMs))
	}
	sortBoats(boats)

	return &models.MFleetView{
		RaceID: raceID,
		Now:    nowMs,
		Boats:  boats,
	}
}

// exportSnapshot converts the live maps into the persisted pair layout, sorted by boat id.
func exportSnapshot(roster map[string]models.MRosterEntry, telemetry map[string]models.MTelemetrySample) *models.MRaceSnapshot {
	snapshot := &models.MRaceSnapshot{
		Roster:    make([]models.MRosterPair, 0, len(roster)),
		Telemetry: make([]models.MTelemetryPair, 0, len(telemetry)),
	}
	for boatID, entry := range roster {
		snapshot.Roster = append(snapshot.Roster, models.MRosterPair{BoatID: boatID, Entry: entry})
	}
	for boatID, sample := range telemetry {
		snapshot.Telemetry = append(snapshot.Telemetry, models.MTelemetryPair{BoatID: boatID, Sample: sample})
	}
	sort.Slice(snapshot.Roster, func(i, j int) bool { return snapshot.Roster[i].BoatID < snapshot.Roster[j].BoatID })
	sort.Slice(snapshot.Telemetry, func(i, j int) bool { return snapshot.Telemetry[i].BoatID < snapshot.Telemetry[j].BoatID })
	return snapshot
}

// importSnapshot rebuilds the live maps from a persisted snapshot.
// A telemetry pair without a roster entry gets one so roster stays a superset of telemetry.
func importSnapshot(snapshot *models.MRaceSnapshot) (map[string]models.MRosterEntry, map[string]models.MTelemetrySample) {
	roster := make(map[string]models.MRosterEntry)
	telemetry := make(map[string]models.MTelemetrySample)
	if snapshot == nil {
		return roster, telemetry
	}

	for _, pair := range snapshot.Roster {
		roster[pair.BoatID] = pair.Entry
	}
	for _, pair := range snapshot.Telemetry {
		telemetry[pair.BoatID] = pair.Sample
		if _, ok := roster[pair.BoatID]; !ok {
			t := pair.Sample.T
			roster[pair.BoatID] = models.MRosterEntry{
				BoatID:      pair.BoatID,
				DisplayName: pair.BoatID,
				JoinedAt:    t,
				LastSeenAt:  &t,
			}
		}
	}
	return roster, telemetry
}
