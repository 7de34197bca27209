package validation

import (
	"math"
	"strings"
	"testing"

	"regatta-live/src/helpers"
	"regatta-live/src/models"
)

func TestValidateUpdate(t *testing.T) {
	valid := models.MUpdateRecord{RaceID: "R1", BoatID: "B1", Lat: -90, Lon: 180, T: 1}

	cases := []struct {
		name    string
		mutate  func(*models.MUpdateRecord)
		wantErr string
	}{
		{name: "valid edge values"},
		{name: "missing race", mutate: func(r *models.MUpdateRecord) { r.RaceID = "" }, wantErr: "RaceID is required"},
		{name: "missing boat", mutate: func(r *models.MUpdateRecord) { r.BoatID = "" }, wantErr: "BoatID is required"},
		{name: "blank boat", mutate: func(r *models.MUpdateRecord) { r.BoatID = " \t " }, wantErr: "BoatID is required"},
		{name: "blank race", mutate: func(r *models.MUpdateRecord) { r.RaceID = "  " }, wantErr: "RaceID is required"},
		{name: "lat too high", mutate: func(r *models.MUpdateRecord) { r.Lat = 90.0001 }, wantErr: "Lat"},
		{name: "lon too low", mutate: func(r *models.MUpdateRecord) { r.Lon = -180.5 }, wantErr: "Lon"},
		{name: "lat NaN", mutate: func(r *models.MUpdateRecord) { r.Lat = math.NaN() }, wantErr: "Lat"},
		{name: "lon infinite", mutate: func(r *models.MUpdateRecord) { r.Lon = math.Inf(1) }, wantErr: "Lon"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := valid
			if tc.mutate != nil {
				tc.mutate(&rec)
			}
			err := ValidateUpdate(rec)

			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !helpers.IsInvalidInput(err) {
				t.Fatalf("err = %v, want InvalidInput", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("message %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidateBoatID(t *testing.T) {
	if err := ValidateBoatID("B1"); err != nil {
		t.Errorf("B1: %v", err)
	}
	for _, id := range []string{"", "   "} {
		if err := ValidateBoatID(id); !helpers.IsInvalidInput(err) {
			t.Errorf("%q: err = %v, want InvalidInput", id, err)
		}
	}
}
