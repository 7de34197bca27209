package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"regatta-live/src/helpers"
	"regatta-live/src/metrics"
	"regatta-live/src/models"
	"regatta-live/src/race"

	"github.com/gin-gonic/gin"
)

const ingestKeyHeader = "X-Ingest-Key"

// -----------------------------------------------------------------------------
// Request bodies
// -----------------------------------------------------------------------------

// ingestRequest uses pointers so that a zero coordinate is told apart from a missing one.
type ingestRequest struct {
	RaceID      string   `json:"raceId" binding:"required"`
	BoatID      string   `json:"boatId" binding:"required"`
	DisplayName string   `json:"displayName"`
	Lat         *float64 `json:"lat" binding:"required"`
	Lon         *float64 `json:"lon" binding:"required"`
	T           *int64   `json:"t" binding:"required"`
	SOG         *float64 `json:"sog"`
	COG         *float64 `json:"cog"`
	Heading     *float64 `json:"heading"`
	Heel        *float64 `json:"heel"`
}

func (r ingestRequest) record() models.MUpdateRecord {
	return models.MUpdateRecord{
		RaceID:      r.RaceID,
		BoatID:      r.BoatID,
		DisplayName: r.DisplayName,
		Lat:         *r.Lat,
		Lon:         *r.Lon,
		T:           *r.T,
		SOG:         r.SOG,
		COG:         r.COG,
		Heading:     r.Heading,
		Heel:        r.Heel,
	}
}

type joinRequest struct {
	BoatID      string `json:"boatId" binding:"required"`
	DisplayName string `json:"displayName"`
	Nation      string `json:"nation"`
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

// authorize checks the shared ingest key. An empty configured key leaves the routes open.
func (s *APIServer) authorize(c *gin.Context) {
	key := s.Config.Ingest.SharedKey
	if key == "" {
		c.Next()
		return
	}

	given := c.GetHeader(ingestKeyHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
		metrics.UpdatesRejected.WithLabelValues("unauthorized").Inc()
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid ingest key"})
		return
	}
	c.Next()
}

// -----------------------------------------------------------------------------

func (s *APIServer) throttle(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.UpdatesRejected.WithLabelValues("throttled").Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "ingest rate exceeded"})
		return
	}
	c.Next()
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

func statusFor(err error) int {
	switch {
	case helpers.IsInvalidInput(err):
		return http.StatusBadRequest
	case helpers.IsNotFound(err):
		return http.StatusNotFound
	case helpers.IsPersistence(err), errors.Is(err, race.ErrChannelStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// -----------------------------------------------------------------------------

func rejectInvalid(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// -----------------------------------------------------------------------------
// Query parsing
// -----------------------------------------------------------------------------

func parseReplayQuery(c *gin.Context) (models.MReplayQuery, error) {
	q := models.MReplayQuery{
		RaceID: c.Param("raceId"),
		Mode:   c.DefaultQuery("mode", models.ReplayModeSmooth),
	}

	var err error
	if q.From, err = requiredInt(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = requiredInt(c, "to"); err != nil {
		return q, err
	}

	if raw := c.Query("hz"); raw != "" {
		q.Hz, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, helpers.WrapInvalidInput("hz must be a number", err)
		}
	}
	return q, nil
}

func requiredInt(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, helpers.NewInvalidInput("%s is required", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, helpers.WrapInvalidInput(name+" must be epoch milliseconds", err)
	}
	return v, nil
}
