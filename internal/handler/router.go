package handler

import (
	"net/http"

	"reading-bridge/internal/domain"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter creates a new HTTP router with all routes configured. An empty
// allowedOrigins list allows any origin.
func NewRouter(sessionHandler *SessionHandler, logger domain.Logger, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger))

	// Health check endpoint (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "reading-bridge"})
	}).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(TokenMiddleware(logger))

	api.HandleFunc("/sessions", sessionHandler.OpenSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", sessionHandler.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessionHandler.CloseSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/location", sessionHandler.SetLocation).Methods("PUT")
	api.HandleFunc("/sessions/{id}/events", sessionHandler.Events).Methods("GET")

	// Highlights
	api.HandleFunc("/sessions/{id}/highlights", sessionHandler.ListHighlights).Methods("GET")
	api.HandleFunc("/sessions/{id}/highlights", sessionHandler.CreateHighlight).Methods("POST")
	api.HandleFunc("/sessions/{id}/highlights/{highlightId}", sessionHandler.DeleteHighlight).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/palette", sessionHandler.SetPalette).Methods("PUT")
	api.HandleFunc("/sessions/{id}/decorations/{decorationId}/activate", sessionHandler.ActivateDecoration).Methods("POST")
	api.HandleFunc("/sessions/{id}/highlight-actions", sessionHandler.ResolveHighlightAction).Methods("POST")

	// Search
	api.HandleFunc("/sessions/{id}/search", sessionHandler.SubmitSearch).Methods("POST")
	api.HandleFunc("/sessions/{id}/search/next", sessionHandler.NextSearchPage).Methods("POST")
	api.HandleFunc("/sessions/{id}/search", sessionHandler.CancelSearch).Methods("DELETE")

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		MaxAge: 300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler(router)
}
