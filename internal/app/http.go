package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/auth"
	"github.com/justingibbs/crabgrass-2/internal/config"
	"github.com/justingibbs/crabgrass-2/internal/export"
	"github.com/justingibbs/crabgrass-2/internal/rbac"
	"github.com/justingibbs/crabgrass-2/internal/search"
	"github.com/justingibbs/crabgrass-2/internal/store"
)

type HTTPServer struct {
	service *Service
	cfg     config.Config
}

func NewHTTPServer(service *Service, cfg config.Config) *HTTPServer {
	return &HTTPServer{service: service, cfg: cfg}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	user, err := s.currentUser(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	switch parts[1] {
	case "auth":
		s.handleAuth(w, r, parts, user)
	case "ideas":
		s.handleIdeas(w, r, parts, user)
	case "objectives":
		s.handleObjectives(w, r, parts, user)
	case "search":
		if r.Method == http.MethodGet && len(parts) == 2 {
			s.handleSearch(w, r, user)
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// currentUser resolves the signed dev cookie, falling back to the default
// seeded user when it is absent or invalid.
func (s *HTTPServer) currentUser(r *http.Request) (store.User, error) {
	userID := ""
	if cookie, err := r.Cookie(s.cfg.CookieName); err == nil {
		if id, err := auth.ParseUserID([]byte(s.cfg.CookieSecret), cookie.Value); err == nil {
			userID = id
		}
	}
	return s.service.ResolveUser(r.Context(), userID)
}

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string, user store.User) {
	if r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "users" {
		users, err := s.service.ListDevUsers(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
		return
	}

	if r.Method == http.MethodGet && len(parts) == 3 && parts[2] == "me" {
		writeJSON(w, http.StatusOK, userPayload(user))
		return
	}

	if r.Method == http.MethodPost && len(parts) == 4 && parts[2] == "switch" {
		target, err := s.service.SwitchUser(r.Context(), parts[3])
		if err != nil {
			s.fail(w, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     s.cfg.CookieName,
			Value:    auth.SignUserID([]byte(s.cfg.CookieSecret), target.ID),
			Path:     "/",
			MaxAge:   int(s.cfg.CookieTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, userPayload(target))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleIdeas(w http.ResponseWriter, r *http.Request, parts []string, user store.User) {
	// /api/ideas
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			ideas, err := s.service.ListIdeas(r.Context(), user)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ideas": ideas})
		case http.MethodPost:
			var body struct {
				Title       string  `json:"title"`
				ObjectiveID *string `json:"objective_id"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			idea, err := s.service.CreateIdea(r.Context(), user, body.Title, body.ObjectiveID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, idea)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	ideaID := parts[2]

	// /api/ideas/{id}
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			idea, err := s.service.GetIdea(r.Context(), ideaID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, idea)
		case http.MethodPatch:
			var body struct {
				Title       *string `json:"title"`
				ObjectiveID *string `json:"objective_id"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			idea, err := s.service.UpdateIdea(r.Context(), ideaID, body.Title, body.ObjectiveID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, idea)
		case http.MethodDelete:
			if err := s.service.ArchiveIdea(r.Context(), ideaID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"archived": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch parts[3] {
	case "events":
		if r.Method == http.MethodGet && len(parts) == 4 {
			s.handleIdeaEvents(w, r, ideaID)
			return
		}
	case "export":
		if r.Method == http.MethodGet && len(parts) == 4 {
			s.handleExport(w, r, ideaID)
			return
		}
	case "kernel":
		s.handleKernel(w, r, parts, user, ideaID)
		return
	case "coherence":
		s.handleCoherence(w, r, parts, user, ideaID)
		return
	case "context":
		s.handleContext(w, r, parts, user, ideaID)
		return
	case "sessions":
		if r.Method == http.MethodGet && len(parts) == 4 {
			sessions, err := s.service.ListIdeaSessions(r.Context(), ideaID, r.URL.Query().Get("agent_type"), r.URL.Query().Get("file_type"))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
			return
		}
		if r.Method == http.MethodGet && len(parts) == 5 {
			session, err := s.service.GetSessionMessages(r.Context(), parts[4])
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, session)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleKernel(w http.ResponseWriter, r *http.Request, parts []string, user store.User, ideaID string) {
	if len(parts) < 5 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	fileType := parts[4]

	// /api/ideas/{id}/kernel/{file_type}
	if len(parts) == 5 {
		switch r.Method {
		case http.MethodGet:
			file, err := s.service.GetKernelFile(r.Context(), ideaID, fileType)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			file, err := s.service.SaveKernelFile(r.Context(), user, ideaID, fileType, body.Content)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 6 {
		switch {
		case r.Method == http.MethodGet && parts[5] == "sessions":
			sessions, err := s.service.ListIdeaSessions(r.Context(), ideaID, fileType, fileType)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
			return
		case r.Method == http.MethodGet && parts[5] == "history":
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			history, err := s.service.KernelHistory(r.Context(), ideaID, fileType, limit)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"history": history})
			return
		case r.Method == http.MethodPost && parts[5] == "chat":
			var body struct {
				Message string `json:"message"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.ChatWithFileAgent(r.Context(), user, ideaID, fileType, body.Message)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		case r.Method == http.MethodPost && parts[5] == "selection-action":
			var input SelectionActionInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.KernelSelectionAction(r.Context(), user, ideaID, fileType, input)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, result)
			return
		}
	}

	// /api/ideas/{id}/kernel/{file_type}/restore/{hash}
	if r.Method == http.MethodPost && len(parts) == 7 && parts[5] == "restore" {
		file, err := s.service.RestoreKernelVersion(r.Context(), user, ideaID, fileType, parts[6])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, file)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCoherence(w http.ResponseWriter, r *http.Request, parts []string, user store.User, ideaID string) {
	if r.Method == http.MethodPost && len(parts) == 5 && parts[4] == "chat" {
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.CoherenceChat(r.Context(), user, ideaID, body.Message)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method == http.MethodPost && len(parts) == 5 && parts[4] == "evaluate" {
		result, err := s.service.CoherenceEvaluate(r.Context(), ideaID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleContext(w http.ResponseWriter, r *http.Request, parts []string, user store.User, ideaID string) {
	// /api/ideas/{id}/context
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			files, err := s.service.ListContextFiles(r.Context(), ideaID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"files": files})
		case http.MethodPost:
			var body struct {
				Filename string `json:"filename"`
				Content  string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			file, err := s.service.CreateContextFile(r.Context(), ideaID, body.Filename, body.Content)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, file)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	fileID := parts[4]

	// /api/ideas/{id}/context/{file_id}
	if len(parts) == 5 {
		switch r.Method {
		case http.MethodGet:
			file, err := s.service.GetContextFile(r.Context(), ideaID, fileID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			file, err := s.service.UpdateContextFile(r.Context(), ideaID, fileID, body.Content)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
		case http.MethodDelete:
			if err := s.service.DeleteContextFile(r.Context(), ideaID, fileID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodPost && len(parts) == 6 && parts[5] == "chat" {
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ContextChat(r.Context(), user, ideaID, fileID, body.Message)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleObjectives(w http.ResponseWriter, r *http.Request, parts []string, user store.User) {
	// /api/objectives
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			objectives, err := s.service.ListObjectives(r.Context(), user)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"objectives": objectives})
		case http.MethodPost:
			if !rbac.Can(user.Role, rbac.ActionManageObjectives) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Only org admins can manage objectives", nil)
				return
			}
			var body struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Timeframe   string `json:"timeframe"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			objective, err := s.service.CreateObjective(r.Context(), user, body.Title, body.Description, body.Timeframe)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, objective)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	objectiveID := parts[2]

	// /api/objectives/{id}
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			objective, err := s.service.GetObjective(r.Context(), objectiveID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, objective)
		case http.MethodPatch:
			if !rbac.Can(user.Role, rbac.ActionManageObjectives) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Only org admins can manage objectives", nil)
				return
			}
			var body struct {
				Title       *string `json:"title"`
				Description *string `json:"description"`
				Timeframe   *string `json:"timeframe"`
				OwnerID     *string `json:"owner_id"`
				Status      *string `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			objective, err := s.service.UpdateObjective(r.Context(), objectiveID, body.Title, body.Description, body.Timeframe, body.OwnerID, body.Status)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, objective)
		case http.MethodDelete:
			if !rbac.Can(user.Role, rbac.ActionManageObjectives) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Only org admins can manage objectives", nil)
				return
			}
			if err := s.service.ArchiveObjective(r.Context(), objectiveID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"archived": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 {
		switch {
		case r.Method == http.MethodGet && parts[3] == "ideas":
			ideas, err := s.service.ObjectiveIdeas(r.Context(), objectiveID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ideas": ideas})
			return
		case r.Method == http.MethodGet && parts[3] == "file":
			file, err := s.service.GetObjectiveFile(r.Context(), objectiveID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
			return
		case r.Method == http.MethodPut && parts[3] == "file":
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			file, err := s.service.SaveObjectiveFile(r.Context(), objectiveID, body.Content)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
			return
		case r.Method == http.MethodPost && parts[3] == "chat":
			var body struct {
				Message string `json:"message"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			result, err := s.service.ObjectiveChat(r.Context(), user, objectiveID, body.Message)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		case r.Method == http.MethodGet && parts[3] == "alignment":
			result, err := s.service.ObjectiveAlignment(r.Context(), objectiveID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		case r.Method == http.MethodGet && parts[3] == "sessions":
			sessions, err := s.service.ListObjectiveSessions(r.Context(), objectiveID, r.URL.Query().Get("agent_type"))
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
			return
		}
	}

	// /api/objectives/{id}/file/selection-action
	if r.Method == http.MethodPost && len(parts) == 5 && parts[3] == "file" && parts[4] == "selection-action" {
		var input SelectionActionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ObjectiveSelectionAction(r.Context(), user, objectiveID, input)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, user store.User) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	result, err := s.service.Search(r.Context(), user, search.Query{
		Text:         query.Get("q"),
		FilterType:   search.ResultType(query.Get("type")),
		FilterIdeaID: query.Get("idea_id"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, ideaID string) {
	format := export.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = export.FormatHTML
	}

	result, err := s.service.ExportIdea(r.Context(), ideaID, format)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.cfg.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets the SSE handler stream through the status recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusBadRequest, "INVALID_FORMAT", "Unsupported export format", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
