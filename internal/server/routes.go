package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/manual", s.app.JobHandler.AddManualJobHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - Notifications
	mux.HandleFunc("/api/notifications/ack", s.app.JobHandler.AcknowledgeHandler)
	mux.HandleFunc("/api/events", s.app.EventsHandler.RecentEventsHandler)

	// API routes - Structures
	mux.HandleFunc("/api/structures", s.app.StructuresHandler.ListStructuresHandler)
	mux.HandleFunc("/api/structures/", s.handleStructureRoutes)

	// API routes - Settings
	mux.HandleFunc("/api/settings/defaults", s.app.SettingsHandler.DefaultsHandler)
	mux.HandleFunc("/api/settings/validate", s.app.SettingsHandler.ValidateHandler)

	// API routes - Configuration and logs
	mux.HandleFunc("/api/config", s.app.ConfigHandler.GetConfigHandler)
	mux.HandleFunc("/api/logs", s.app.LogsHandler.ListLogsHandler)
	mux.HandleFunc("/api/logs/", s.app.LogsHandler.GetLogHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and submit)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.SubmitJobHandler)
}

// handleJobRoutes routes /api/jobs/{id} and /api/jobs/{id}/results
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if RouteByPathSuffix(w, r, "/api/jobs/", []PathSuffixRouter{
		{Suffix: "/results", Handler: func(w http.ResponseWriter, r *http.Request) {
			RouteByMethod(w, r, MethodRouter{"GET": s.app.JobHandler.GetJobResultsHandler})
		}},
	}) {
		return
	}

	RouteByMethod(w, r, MethodRouter{"GET": s.app.JobHandler.GetJobHandler})
}

// handleStructureRoutes routes /api/structures/{name}/extent
func (s *Server) handleStructureRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/extent") {
		s.app.StructuresHandler.ExtentHandler(w, r)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}
