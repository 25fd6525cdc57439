package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/errand/internal/auth"
	"github.com/dukerupert/errand/internal/lifecycle"
	"github.com/dukerupert/errand/internal/model"
	"github.com/dukerupert/errand/internal/storage"
	"github.com/dukerupert/errand/internal/store"
	"github.com/dukerupert/errand/internal/task"
)

type TaskHandler struct {
	engine *lifecycle.Engine
	chats  *store.ChatStore
	photos *storage.Photos
	logger *slog.Logger
}

func NewTaskHandler(engine *lifecycle.Engine, chats *store.ChatStore, photos *storage.Photos, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{engine: engine, chats: chats, photos: photos, logger: logger}
}

func caller(r *http.Request) auth.AuthContext {
	ac, _ := auth.FromContext(r.Context())
	return ac
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewTask
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.engine.CreateTask(r.Context(), caller(r), req)
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListOpen handles GET /api/tasks
func (h *TaskHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.engine.ListOpen(r.Context())
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.Get(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Accept handles POST /api/tasks/{id}/accept
func (h *TaskHandler) Accept(w http.ResponseWriter, r *http.Request) {
	acc, err := h.engine.Accept(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

type statusRequest struct {
	Phase    string `json:"phase"`
	Note     string `json:"note"`
	PhotoRef string `json:"photo_ref"`
}

// UpdateStatus handles POST /api/tasks/{id}/status
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if req.PhotoRef != "" && !storage.BelongsTo(req.PhotoRef, id) {
		badRequest(w, "photo_ref does not belong to this task")
		return
	}

	t, err := h.engine.AdvancePhase(r.Context(), caller(r), id, req.Phase, req.Note, req.PhotoRef)
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Cancel handles POST /api/tasks/{id}/cancel
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.CancelTask(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// History handles GET /api/tasks/{id}/history
func (h *TaskHandler) History(w http.ResponseWriter, r *http.Request) {
	changes, err := h.engine.History(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	if changes == nil {
		changes = []model.StatusChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

// VerifyCode handles POST /api/tasks/{id}/verify-code
func (h *TaskHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.engine.VerifyHandoff(r.Context(), caller(r), r.PathValue("id"), req.Code)
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

// AcceptanceCode handles GET /api/tasks/{id}/code
func (h *TaskHandler) AcceptanceCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.engine.AcceptanceCode(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"acceptance_code": code})
}

// Moderate handles PUT /api/tasks/{id}/moderation
func (h *TaskHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.engine.Moderate(r.Context(), caller(r), r.PathValue("id"), model.ModerationStatus(req.Status), req.Reason)
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListPosted handles GET /api/users/{id}/tasks/posted
func (h *TaskHandler) ListPosted(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.engine.ListPostedBy(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// ListAccepted handles GET /api/users/{id}/tasks/accepted
func (h *TaskHandler) ListAccepted(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.engine.ListAcceptedBy(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// participantTask loads a task the caller takes part in.
func (h *TaskHandler) participantTask(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	ac := caller(r)
	t, err := h.engine.Get(r.Context(), ac, r.PathValue("id"))
	if err != nil {
		writeTaskError(w, h.logger, err)
		return nil, false
	}
	if !t.IsParticipant(ac.UserID) {
		writeTaskError(w, h.logger, task.Errorf(task.KindNotAuthorized, t.ID, "caller is not a participant"))
		return nil, false
	}
	return t, true
}

// Chat handles GET /api/tasks/{id}/chat
func (h *TaskHandler) Chat(w http.ResponseWriter, r *http.Request) {
	t, ok := h.participantTask(w, r)
	if !ok {
		return
	}
	room, err := h.chats.GetRoomByTask(r.Context(), t.ID)
	if err != nil {
		internalError(w, h.logger, "get chat room", err)
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "CHAT_NOT_FOUND", "this task has no chat yet")
		return
	}
	members, err := h.chats.ListMembers(r.Context(), room.ID)
	if err != nil {
		internalError(w, h.logger, "list chat members", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room, "members": members})
}

// UploadPhoto handles POST /api/tasks/{id}/photos. The body is the raw
// image; Content-Type and Content-Length are required.
func (h *TaskHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if !h.photos.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "PHOTOS_DISABLED", "photo storage is not configured")
		return
	}
	t, ok := h.participantTask(w, r)
	if !ok {
		return
	}
	if t.Status.Terminal() {
		writeTaskError(w, h.logger, task.Errorf(task.KindTerminal, t.ID, "status is %s", t.Status))
		return
	}
	if r.ContentLength <= 0 {
		writeError(w, http.StatusLengthRequired, task.KindInvalidInput.Code(), "Content-Length is required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, storage.MaxPhotoBytes)
	ref, err := h.photos.Upload(r.Context(), t.ID, r.Header.Get("Content-Type"), body, r.ContentLength)
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, task.KindInvalidInput.Code(), "photo must be JPEG, PNG or WebP")
		return
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, task.KindInvalidInput.Code(), "photo must be at most 5 MB")
		return
	case err != nil:
		internalError(w, h.logger, "upload photo", err)
		return
	}
	h.logger.Info("photo uploaded", "task_id", t.ID, "photo_ref", ref)
	writeJSON(w, http.StatusCreated, map[string]string{"photo_ref": ref})
}

// DeletePhoto handles DELETE /api/tasks/{id}/photos/{name}
func (h *TaskHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if !h.photos.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "PHOTOS_DISABLED", "photo storage is not configured")
		return
	}
	t, ok := h.participantTask(w, r)
	if !ok {
		return
	}
	if t.Status.Terminal() {
		writeTaskError(w, h.logger, task.Errorf(task.KindTerminal, t.ID, "status is %s", t.Status))
		return
	}
	ref := "tasks/" + t.ID + "/" + r.PathValue("name")
	if !storage.BelongsTo(ref, t.ID) {
		writeError(w, http.StatusNotFound, "PHOTO_NOT_FOUND", "no such photo")
		return
	}
	if err := h.photos.Delete(r.Context(), ref); err != nil {
		internalError(w, h.logger, "delete photo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPhoto handles GET /api/tasks/{id}/photos/{name}
func (h *TaskHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	if !h.photos.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "PHOTOS_DISABLED", "photo storage is not configured")
		return
	}
	t, ok := h.participantTask(w, r)
	if !ok {
		return
	}

	ref := "tasks/" + t.ID + "/" + r.PathValue("name")
	rc, contentType, err := h.photos.Open(r.Context(), t.ID, ref)
	if errors.Is(err, storage.ErrInvalidRef) {
		writeError(w, http.StatusNotFound, "PHOTO_NOT_FOUND", "no such photo")
		return
	}
	if err != nil {
		internalError(w, h.logger, "open photo", err)
		return
	}
	defer rc.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream photo", "task_id", t.ID, "error", err)
	}
}
