package handlers

import (
	"net/http"
	"time"

	"apexdispatch/internal/middleware"
	"apexdispatch/internal/services"

	"github.com/gorilla/mux"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Users          middleware.UserResolver
	Processing     *services.ProcessingService
	Upscaling      *services.UpscalingService
	DB             Pinger
	StreamInterval time.Duration
	AllowedOrigins string
}

func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger)
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	statusHandler := NewStatusHandler(cfg.Processing, cfg.Upscaling, cfg.DB)
	router.HandleFunc("/health", statusHandler.Health).Methods(http.MethodGet)

	// Websockets authenticate after the upgrade so failures can be reported with a close code.
	streamHandler := NewStreamHandler(cfg.Users, cfg.Processing, cfg.Upscaling, cfg.StreamInterval)
	router.HandleFunc("/ws/jobs_status", streamHandler.JobsStatus).Methods(http.MethodGet)
	router.HandleFunc("/ws/unit_jobs/{id}", streamHandler.UnitJob).Methods(http.MethodGet)
	router.HandleFunc("/ws/upscale_tasks/{id}", streamHandler.UpscaleTask).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(middleware.Auth(cfg.Users))

	unitJobs := NewUnitJobsHandler(cfg.Processing)
	api.HandleFunc("/unit_jobs", unitJobs.ListJobs).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/unit_jobs", unitJobs.CreateJob).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/unit_jobs/{id}", unitJobs.GetJob).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/unit_jobs/{id}/results", unitJobs.GetJobResults).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sync_jobs", unitJobs.CreateSyncJob).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/params", unitJobs.ServiceParameters).Methods(http.MethodPost, http.MethodOptions)

	upscaleTasks := NewUpscaleTasksHandler(cfg.Upscaling)
	api.HandleFunc("/upscale_tasks", upscaleTasks.ListTasks).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/upscale_tasks", upscaleTasks.CreateTask).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/upscale_tasks/{id}", upscaleTasks.GetTask).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/jobs_status", statusHandler.JobsStatus).Methods(http.MethodGet, http.MethodOptions)

	return router
}
