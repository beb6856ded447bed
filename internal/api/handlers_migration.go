package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ledger-migrator/internal/logging"
	"github.com/ledger-migrator/internal/models"
)

// handleListMigrations handles GET /api/migrations - List runnable migration types
func (s *Server) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"migrations": s.registry.Types(),
	})
}

// handleRunMigration handles POST /api/migrations/:type/run - Trigger a run
func (s *Server) handleRunMigration(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	migrationType := mux.Vars(r)["type"]

	operatorID := r.Header.Get(operatorHeader)
	if operatorID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "X-Operator-ID header is required", nil)
		return
	}

	var req struct {
		Params models.FieldSet `json:"params"`
	}
	if err := parseJSONBody(r, &req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Params == nil {
		req.Params = models.FieldSet{}
	}

	def, err := s.registry.Build(migrationType, req.Params)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	result, err := s.engine.Run(r.Context(), def, operatorID)
	if err != nil {
		// Fatal run-level failure: the scan or backup creation failed with
		// zero mutations applied.
		respondCategorized(w, err)
		return
	}

	if s.cache != nil && result.BackupID != "" {
		if err := s.cache.InvalidateBackup(r.Context(), result.BackupID); err != nil {
			logger.WithError(err).Warn("Backup cache invalidation failed")
		}
	}

	respondJSON(w, http.StatusOK, result)
}
