package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/infra/xlsx"
)

// maxBodyBytes caps JSON and spreadsheet uploads.
const maxBodyBytes = 8 << 20

// Services are the use cases the REST API exposes.
type Services struct {
	Drafts      *app.DraftManager
	Persistence *app.QuizPersistence
	Importer    *app.BankImporter
	Sessions    *app.SessionFactory
	Joins       *app.JoinService
	Discovery   *app.Discovery
}

type APIHandler struct {
	svc Services
}

func NewAPIHandler(svc Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/authoring/{authoringID}/draft", h.ensureDraft)
	mux.HandleFunc("POST /api/authoring/{authoringID}/questions", h.appendQuestions)
	mux.HandleFunc("POST /api/authoring/{authoringID}/generated", h.appendGenerated)
	mux.HandleFunc("GET /api/quizzes/{quizID}/questions", h.listQuestions)
	mux.HandleFunc("PUT /api/quizzes/{quizID}", h.saveQuiz)
	mux.HandleFunc("POST /api/quizzes/{quizID}/import", h.importBank)
	mux.HandleFunc("POST /api/quizzes/{quizID}/sessions", h.createSession)
	mux.HandleFunc("POST /api/sessions/{sessionID}/start", h.transition(h.svc.Sessions.Start))
	mux.HandleFunc("POST /api/sessions/{sessionID}/advance", h.transition(h.svc.Sessions.Advance))
	mux.HandleFunc("POST /api/sessions/{sessionID}/end", h.transition(h.svc.Sessions.End))
	mux.HandleFunc("POST /api/sessions/{sessionID}/players", h.join)
	mux.HandleFunc("POST /api/join", h.joinByCode)
	mux.HandleFunc("GET /api/banner", h.banner)
}

type authoringRequest struct {
	Owner     string                `json:"owner"`
	Title     string                `json:"title"`
	SubjectID string                `json:"subjectId"`
	TopicID   string                `json:"topicId"`
	Questions []domain.QuizQuestion `json:"questions"`
}

func (r authoringRequest) state(id string) app.AuthoringState {
	return app.AuthoringState{SessionID: id, Owner: r.Owner, Title: r.Title, SubjectID: r.SubjectID, TopicID: r.TopicID}
}

func (h *APIHandler) ensureDraft(w http.ResponseWriter, r *http.Request) {
	var req authoringRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.svc.Drafts.EnsureDraft(r.Context(), req.state(r.PathValue("authoringID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"quizSetId": id})
}

func (h *APIHandler) appendQuestions(w http.ResponseWriter, r *http.Request) {
	h.appendWith(w, r, h.svc.Importer.AppendQuestions)
}

func (h *APIHandler) appendGenerated(w http.ResponseWriter, r *http.Request) {
	h.appendWith(w, r, h.svc.Importer.AppendGenerated)
}

type appendFunc func(context.Context, app.AuthoringState, []domain.QuizQuestion) (string, app.ImportResult, error)

func (h *APIHandler) appendWith(w http.ResponseWriter, r *http.Request, add appendFunc) {
	var req authoringRequest
	if !decode(w, r, &req) {
		return
	}
	id, result, err := add(r.Context(), req.state(r.PathValue("authoringID")), req.Questions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"quizSetId": id, "created": result.Created})
}

func (h *APIHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.svc.Persistence.Questions(r.Context(), r.PathValue("quizID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

type saveRequest struct {
	domain.QuizMeta
	Status    domain.QuizStatus     `json:"status"`
	Questions []domain.QuizQuestion `json:"questions"`
}

func (h *APIHandler) saveQuiz(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.svc.Persistence.Save(r.Context(), r.PathValue("quizID"), req.QuizMeta, req.Questions, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"quizSetId": id})
}

// importBank accepts either a JSON array of bank questions or an .xlsx sheet.
func (h *APIHandler) importBank(w http.ResponseWriter, r *http.Request) {
	var externals []domain.ExternalQuestion
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == xlsx.ContentType {
		parsed, err := xlsx.ReadBank(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		externals = parsed
	} else if !decode(w, r, &externals) {
		return
	}

	result, err := h.svc.Importer.Import(r.Context(), r.PathValue("quizID"), externals)
	if err != nil {
		var importErr *domain.ImportError
		if errors.As(err, &importErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      importErr.Error(),
				"questionId": importErr.QuestionID,
				"created":    importErr.Created,
				"skipped":    importErr.Skipped,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req app.SessionRequest
	if !decode(w, r, &req) {
		return
	}
	authored, err := h.svc.Persistence.Questions(r.Context(), r.PathValue("quizID"))
	if err != nil {
		writeError(w, err)
		return
	}
	session, questions, err := h.svc.Sessions.CreateSession(r.Context(), req, authored)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": session, "questionCount": len(questions)})
}

func (h *APIHandler) transition(step func(context.Context, string) (domain.LiveQuizSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := step(r.Context(), r.PathValue("sessionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

type joinRequest struct {
	Code            string `json:"code"`
	Nickname        string `json:"nickname"`
	StudentIdentity string `json:"studentIdentity"`
}

func (h *APIHandler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	player, err := h.svc.Joins.Join(r.Context(), r.PathValue("sessionID"), req.Nickname, req.StudentIdentity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *APIHandler) joinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	player, err := h.svc.Joins.JoinByCode(r.Context(), req.Code, req.Nickname, req.StudentIdentity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *APIHandler) banner(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Discovery.FindBannerSession(r.Context(), classIDs(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBannerPayload(session))
}

// classIDs accepts both ?classId=a&classId=b and ?classId=a,b.
func classIDs(r *http.Request) []string {
	var out []string
	for _, raw := range r.URL.Query()["classId"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

// decode treats an empty body as an empty request.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *domain.ValidationError
		limited    *domain.RateLimitError
		creation   *domain.CreationError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Message, Rule: validation.Rule})
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: limited.Error()})
	case errors.Is(err, domain.ErrNoQuizSelected), errors.Is(err, domain.ErrNoQuestions):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNoLiveQuiz), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.As(err, &creation):
		log.Printf("draft creation failed: %v", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "could not create draft quiz"})
	default:
		log.Printf("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
