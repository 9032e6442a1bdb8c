package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status        string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	SchemaVersion int                        `json:"schema_version" doc:"Schema version recorded in the database"`
	Components    map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := make(map[string]ComponentHealth)
	overall := "healthy"

	dbHealth := s.checkDatabase(ctx)
	components["database"] = dbHealth
	if dbHealth.Status != "healthy" {
		overall = "unhealthy"
	}

	version, schemaHealth := s.checkSchema(ctx)
	components["schema"] = schemaHealth
	if schemaHealth.Status == "unhealthy" {
		overall = "unhealthy"
	} else if schemaHealth.Status == "degraded" && overall == "healthy" {
		overall = "degraded"
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	return &HealthOutput{
		Status: status,
		Body: HealthResponse{
			Status:        overall,
			SchemaVersion: version,
			Components:    components,
		},
	}, nil
}

// checkDatabase verifies the SQLite pool can hand out a working connection.
func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.store == nil {
		return ComponentHealth{
			Status:  "degraded",
			Message: "database not configured",
		}
	}

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		s.logger.Warn("health check: database ping failed", "error", err)
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "database unreachable",
		}
	}

	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

// checkSchema compares the database's schema version with the one this
// build migrates to.
func (s *Server) checkSchema(ctx context.Context) (int, ComponentHealth) {
	if s.store == nil {
		return 0, ComponentHealth{
			Status:  "degraded",
			Message: "database not configured",
		}
	}

	version, err := s.store.SchemaVersion(ctx)
	if err != nil {
		return 0, ComponentHealth{
			Status:  "unhealthy",
			Message: "schema version unreadable",
		}
	}

	if version != s.latestSchema {
		return version, ComponentHealth{
			Status:  "degraded",
			Message: "schema at version " + strconv.Itoa(version) + ", expected " + strconv.Itoa(s.latestSchema),
		}
	}

	return version, ComponentHealth{
		Status:  "healthy",
		Message: "schema at version " + strconv.Itoa(version),
	}
}
