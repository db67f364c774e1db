package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/board"
	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/storage"
)

// DefaultMaxUploadBytes caps the selfie upload size.
const DefaultMaxUploadBytes = 15 << 20

// App carries the handler dependencies.
type App struct {
	Users   domain.UserRepository
	Jobs    domain.JobRepository
	Images  domain.ImageRepository
	Service *generation.Service
	Store   storage.Store
	Boards  *board.Catalog
	Logger  infra.Logger

	MaxUploadBytes int64
}

func (a *App) maxUpload() int64 {
	if a.MaxUploadBytes > 0 {
		return a.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) isSuperuser(r *http.Request) bool {
	return middleware.SuperuserFromContext(r.Context())
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}
