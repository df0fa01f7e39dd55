package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/middleware"
	"github.com/scythe504/mathquest-backend/internal/repository"
	"github.com/scythe504/mathquest-backend/internal/store"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID(s.logger))
	r.Use(middleware.Recover(s.logger))

	r.HandleFunc("/", s.HelloWorldHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/rooms-available", s.GetRoomsToJoin).Methods(http.MethodGet)
	r.HandleFunc("/online", s.GetOnlineCount).Methods(http.MethodGet)
	r.HandleFunc("/duels/recent", s.GetRecentDuels).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.relay.HandleWebSocket)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})
	return c.Handler(r)
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "Hello World"})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":      "ok",
		"clients":     s.relay.Clients(),
		"persistence": s.duels.Enabled(),
	})
}

// GetRoomsToJoin lists waiting public rooms, oldest first.
func (s *Server) GetRoomsToJoin(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()

	records := make(map[string]internal.RoomRecord)
	for code, doc := range s.hub.Snapshot(internal.DuelsCollection) {
		var rec internal.RoomRecord
		if err := store.Decode(doc, &rec); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("room", code).Msg("skipping undecodable room")
			continue
		}
		records[code] = rec
	}
	rooms := internal.OpenRooms(records, "")

	if len(rooms) == 0 {
		writeResponse(w, r, start, http.StatusNotFound, "No joinable rooms available")
		return
	}
	writeResponse(w, r, start, http.StatusOK, rooms)
}

func (s *Server) GetOnlineCount(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	online := len(s.hub.Snapshot(internal.OnlineCollection))
	writeResponse(w, r, start, http.StatusOK, map[string]int{"online": online})
}

func (s *Server) GetRecentDuels(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()

	limit := repository.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeResponse(w, r, start, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	duels, err := s.duels.Recent(r.Context(), limit)
	switch {
	case errors.Is(err, repository.ErrDisabled):
		writeResponse(w, r, start, http.StatusServiceUnavailable, "Duel history is not enabled")
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to load recent duels")
		writeResponse(w, r, start, http.StatusInternalServerError, "Could not load duel history")
		return
	}
	if duels == nil {
		duels = []internal.DuelSummary{}
	}
	writeResponse(w, r, start, http.StatusOK, duels)
}

// writeResponse wraps data in the timed response envelope.
func writeResponse(w http.ResponseWriter, r *http.Request, start int64, status int, data any) {
	end := time.Now().UnixMilli()
	writeJSON(w, r, status, internal.Response{
		StatusCode:    status,
		RespStartTime: start,
		RespEndTime:   end,
		NetRespTime:   end - start,
		Data:          data,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("error encoding response")
	}
}
