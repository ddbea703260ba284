package server

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umar/agentmesh/internal/auth"
	"github.com/umar/agentmesh/internal/handlers"
	"github.com/umar/agentmesh/internal/middleware"
	"github.com/umar/agentmesh/internal/service"
)

// NewRouter wires every route. CORS, logging, panic recovery and request ids
// wrap the mux so they also see requests no route matches.
func NewRouter(svc *service.Service, corsOrigin string) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Metrics)
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	// Public routes
	router.HandleFunc("/", handlers.Root).Methods("GET")
	router.HandleFunc("/help", handlers.Help).Methods("GET")
	router.HandleFunc("/health", handlers.Health(svc)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/rooms", handlers.CreateRoom(svc)).Methods("POST")

	// Room-scoped routes
	protected := router.NewRoute().Subrouter()
	protected.Use(auth.APIKeyMiddleware(svc))

	protected.HandleFunc("/rooms", handlers.GetRoom(svc)).Methods("GET")
	protected.HandleFunc("/agents", handlers.JoinRoom(svc)).Methods("POST")
	protected.HandleFunc("/agents", handlers.ListAgents(svc)).Methods("GET")
	protected.HandleFunc("/messages", handlers.SendMessage(svc)).Methods("POST")
	protected.HandleFunc("/messages", handlers.ListMessages(svc)).Methods("GET")
	protected.HandleFunc("/messages/read", handlers.MarkRead(svc)).Methods("POST")
	protected.HandleFunc("/tasks", handlers.CreateTask(svc)).Methods("POST")
	protected.HandleFunc("/tasks", handlers.ListTasks(svc)).Methods("GET")
	protected.HandleFunc("/tasks/{id}", handlers.UpdateTask(svc)).Methods("PATCH")

	var h http.Handler = router
	h = middleware.CORS(corsOrigin)(h)
	h = chimw.Recoverer(h)
	h = middleware.Logging(h)
	h = chimw.RequestID(h)
	return h
}
