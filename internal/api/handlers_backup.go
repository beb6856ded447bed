package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/ledger-migrator/internal/logging"
	"github.com/ledger-migrator/internal/models"
)

// handleListBackups handles GET /api/backups - List recent backups
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	limit := s.config.ListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid limit parameter", nil)
			return
		}
		limit = parsed
	}

	if s.cache != nil {
		cached, err := s.cache.GetBackupList(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Warn("Backup list cache read failed")
		} else if cached != nil {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"backups": cached,
				"count":   len(cached),
			})
			return
		}
	}

	backups, err := s.backups.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list backups", nil)
		return
	}
	if backups == nil {
		backups = []*models.Backup{}
	}

	if s.cache != nil {
		if err := s.cache.SetBackupList(r.Context(), limit, backups); err != nil {
			logger.WithError(err).Warn("Backup list cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// handleGetBackup handles GET /api/backups/:id - Get a single backup
func (s *Server) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	backupID := mux.Vars(r)["id"]

	if s.cache != nil {
		cached, err := s.cache.GetBackup(r.Context(), backupID)
		if err != nil {
			logger.WithError(err).Warn("Backup cache read failed")
		} else if cached != nil {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	backup, err := s.backups.GetByID(r.Context(), backupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load backup", nil)
		return
	}
	if backup == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Backup not found", map[string]interface{}{
			"backupId": backupID,
		})
		return
	}

	if s.cache != nil {
		if err := s.cache.SetBackup(r.Context(), backup); err != nil {
			logger.WithError(err).Warn("Backup cache write failed")
		}
	}

	respondJSON(w, http.StatusOK, backup)
}

// handleRollback handles POST /api/backups/:id/rollback - Roll a backup back
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	backupID := mux.Vars(r)["id"]

	operatorID := r.Header.Get(operatorHeader)
	if operatorID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "X-Operator-ID header is required", nil)
		return
	}

	result, err := s.rollback.PerformRollback(r.Context(), backupID, operatorID)
	if err != nil {
		// A partial result with success=false means the restores ran but the
		// backup itself could not be finalized; return it alongside the error
		// status so operators can re-drive from errorDetails.
		if result != nil {
			respondJSON(w, http.StatusInternalServerError, result)
			return
		}
		respondCategorized(w, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.InvalidateBackup(r.Context(), backupID); err != nil {
			logger.WithError(err).Warn("Backup cache invalidation failed")
		}
	}

	respondJSON(w, http.StatusOK, result)
}
