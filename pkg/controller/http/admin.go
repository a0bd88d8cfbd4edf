package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/usecase"
	"github.com/Dev-Marygold/Laffey/pkg/utils/errutil"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
)

// defaultKnowledgeLimit applies when the list request has no limit
const defaultKnowledgeLimit = 100

// defaultMemoryLimit applies when the memory view request has no limit
const defaultMemoryLimit = 20

// maxRequestBytes bounds admin request bodies
const maxRequestBytes = 1 << 20

// AdminUseCase is the operator surface exposed over HTTP
type AdminUseCase interface {
	Stats(ctx context.Context) *model.Stats
	ForceConsolidation(ctx context.Context, channelID string) *model.ConsolidationResult
	ClearChannel(ctx context.Context, channelID string) int
	RequestWipe(ctx context.Context) (string, time.Time)
	ConfirmWipe(ctx context.Context, token string) (*model.WipeResult, error)
	Teach(ctx context.Context, question, answer, teacherID, teacherName string) (model.MemoryID, error)
	RecentMemories(ctx context.Context, speakerID string, limit int) []*model.EpisodicMemory
	ListKnowledge(ctx context.Context, limit int, teacherID string) []*model.EpisodicMemory
	UpdateKnowledge(ctx context.Context, id model.MemoryID, question, answer string) (*model.EpisodicMemory, error)
	DeleteKnowledge(ctx context.Context, id model.MemoryID) error
	LastPrompt() string
	ReloadPersona(ctx context.Context) error
	Identity() *model.CoreIdentity
	UpdateIdentity(ctx context.Context, identity *model.CoreIdentity) error
}

var _ AdminUseCase = (*usecase.AdminUseCase)(nil)

// WipeTicket is the response of a wipe request
type WipeTicket struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClearResult is the response of a channel clear
type ClearResult struct {
	ChannelID string `json:"channel_id"`
	Cleared   int    `json:"cleared"`
}

// Knowledge is the wire form of a learned knowledge entry
type Knowledge struct {
	ID        model.MemoryID `json:"id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	TaughtBy  string         `json:"taught_by,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Memory is the wire form of an episodic memory
type Memory struct {
	ID          model.MemoryID `json:"id"`
	SpeakerID   string         `json:"speaker_id"`
	SpeakerName string         `json:"speaker_name"`
	ChannelID   string         `json:"channel_id"`
	UserText    string         `json:"user_text"`
	AgentText   string         `json:"agent_text"`
	Summary     string         `json:"summary,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

func toMemory(m *model.EpisodicMemory) Memory {
	return Memory{
		ID:          m.ID,
		SpeakerID:   m.SpeakerID,
		SpeakerName: m.SpeakerName,
		ChannelID:   m.ChannelID,
		UserText:    m.UserText,
		AgentText:   m.AgentText,
		Summary:     m.Metadata["summary"],
		Timestamp:   m.Timestamp,
	}
}

// TeachRequest is the body of POST /api/admin/knowledge
type TeachRequest struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name"`
}

// UpdateKnowledgeRequest is the body of PUT /api/admin/knowledge/{id}. Empty
// fields keep the stored value.
type UpdateKnowledgeRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PromptResponse is the last system prompt
type PromptResponse struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toKnowledge(m *model.EpisodicMemory) Knowledge {
	return Knowledge{
		ID:        m.ID,
		Question:  m.Question(),
		Answer:    m.AgentText,
		TaughtBy:  m.Metadata["taught_by"],
		Timestamp: m.Timestamp,
	}
}

func mountAdminRoutes(r chi.Router, admin AdminUseCase) {
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, admin.Stats(r.Context()))
	})

	r.Route("/channels/{channelID}", func(r chi.Router) {
		r.Post("/consolidate", func(w http.ResponseWriter, r *http.Request) {
			result := admin.ForceConsolidation(r.Context(), chi.URLParam(r, "channelID"))
			writeJSON(w, r, http.StatusOK, result)
		})
		r.Delete("/memory", func(w http.ResponseWriter, r *http.Request) {
			channelID := chi.URLParam(r, "channelID")
			n := admin.ClearChannel(r.Context(), channelID)
			writeJSON(w, r, http.StatusOK, ClearResult{ChannelID: channelID, Cleared: n})
		})
	})

	r.Post("/wipe", func(w http.ResponseWriter, r *http.Request) {
		token, expiresAt := admin.RequestWipe(r.Context())
		writeJSON(w, r, http.StatusAccepted, WipeTicket{Token: token, ExpiresAt: expiresAt})
	})
	r.Post("/wipe/{token}", func(w http.ResponseWriter, r *http.Request) {
		result, err := admin.ConfirmWipe(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			handleAdminError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, result)
	})

	r.Get("/memories", func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryLimit(w, r, defaultMemoryLimit)
		if !ok {
			return
		}

		memories := admin.RecentMemories(r.Context(), r.URL.Query().Get("speaker"), limit)
		resp := make([]Memory, 0, len(memories))
		for _, m := range memories {
			resp = append(resp, toMemory(m))
		}
		writeJSON(w, r, http.StatusOK, resp)
	})

	r.Route("/knowledge", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			limit, ok := queryLimit(w, r, defaultKnowledgeLimit)
			if !ok {
				return
			}

			entries := admin.ListKnowledge(r.Context(), limit, r.URL.Query().Get("teacher"))
			resp := make([]Knowledge, 0, len(entries))
			for _, m := range entries {
				resp = append(resp, toKnowledge(m))
			}
			writeJSON(w, r, http.StatusOK, resp)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req TeachRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			teacher := req.TeacherName
			if teacher == "" {
				teacher = "admin"
			}

			id, err := admin.Teach(r.Context(), req.Question, req.Answer, req.TeacherID, teacher)
			if err != nil {
				handleAdminError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusCreated, map[string]model.MemoryID{"id": id})
		})

		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var req UpdateKnowledgeRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			updated, err := admin.UpdateKnowledge(r.Context(), model.MemoryID(chi.URLParam(r, "id")), req.Question, req.Answer)
			if err != nil {
				handleAdminError(w, r, err)
				return
			}
			writeJSON(w, r, http.StatusOK, toKnowledge(updated))
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := admin.DeleteKnowledge(r.Context(), model.MemoryID(chi.URLParam(r, "id"))); err != nil {
				handleAdminError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Get("/prompt", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, PromptResponse{Prompt: admin.LastPrompt()})
	})

	r.Post("/persona/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := admin.ReloadPersona(r.Context()); err != nil {
			errutil.Handle(r.Context(), err, "persona reload failed")
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "reloaded"})
	})

	r.Get("/identity", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, admin.Identity())
	})
	r.Put("/identity", func(w http.ResponseWriter, r *http.Request) {
		var identity model.CoreIdentity
		if !decodeJSON(w, r, &identity) {
			return
		}
		if err := admin.UpdateIdentity(r.Context(), &identity); err != nil {
			handleAdminError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, admin.Identity())
	})
}

// queryLimit reads the "limit" query parameter. It writes a 400 response and
// returns false when the value is not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

func handleAdminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrKnowledgeNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, usecase.ErrKnowledgeNotOwned):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, usecase.ErrInvalidWipeToken):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		errutil.Handle(r.Context(), err, "admin request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.From(r.Context()).Warn("failed to write response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}
