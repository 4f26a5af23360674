package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"parley/cmd/internal/chat"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Handler wires the HTTP/JSON endpoints to the chat services.
type Handler struct {
	log      *slog.Logger
	users    *chat.UserService
	channels *chat.ChannelService

	maxBodyBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, users *chat.UserService, channels *chat.ChannelService) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		users:        users,
		channels:     channels,
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /me", h.handleMe)

	mux.HandleFunc("POST /channels", h.handleCreateChannel)
	mux.HandleFunc("GET /channels", h.handleMyChannels)
	mux.HandleFunc("GET /channels/public", h.handlePublicChannels)
	mux.HandleFunc("GET /channels/{id}", h.handleGetChannel)
	mux.HandleFunc("DELETE /channels/{id}", h.handleDeleteChannel)
	mux.HandleFunc("POST /channels/{id}/join", h.handleJoinChannel)
	mux.HandleFunc("POST /channels/{id}/leave", h.handleLeaveChannel)
	mux.HandleFunc("GET /channels/{id}/messages", h.handleReadMessages)
	mux.HandleFunc("POST /channels/{id}/messages", h.handleSendMessage)

	mux.HandleFunc("POST /invitations", h.handleSendInvitation)
	mux.HandleFunc("GET /invitations", h.handleMyInvitations)
	mux.HandleFunc("POST /invitations/{id}/accept", h.handleAcceptInvitation)
	mux.HandleFunc("DELETE /invitations/{id}", h.handleRemoveInvitation)
}

// ---- auth ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	raw, expiry, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	user, err := h.users.ByToken(r.Context(), raw)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(user),
		Session: sessionResponse{Token: raw, ExpiresAt: expiry},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Logout(r.Context(), bearerToken(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ---- channels ----

func (h *Handler) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req createChannelRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	switch req.Kind {
	case "single":
		ch, err := h.channels.CreateSingle(r.Context(), req.Name, user.ID)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toChannelResponse(ch))
	case "group":
		ch, err := h.channels.CreateGroup(r.Context(), req.Name, user.ID, chat.Visibility(req.Visibility))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toChannelResponse(ch))
	default:
		writeError(w, http.StatusBadRequest, "invalid_kind", `kind must be "single" or "group"`)
	}
}

func (h *Handler) handleMyChannels(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	chs, err := h.channels.ChannelsByUser(r.Context(), user.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channelList(chs))
}

func (h *Handler) handlePublicChannels(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	chs, err := h.channels.PublicChannels(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channelList(chs))
}

func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	ch, err := h.channels.ByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !chat.CanRead(ch, user.ID) {
		writeError(w, http.StatusForbidden, "forbidden", "no read access")
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

func (h *Handler) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.channels.Delete(r.Context(), r.PathValue("id"), user.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleJoinChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	ch, err := h.channels.ByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	// Direct joins exist for discoverable channels only. Single channels and
	// private groups are entered through invitations, which carry the access
	// level the owner granted; a self-service join is always read_write.
	g, isGroup := ch.(chat.GroupChannel)
	if !isGroup || g.Visibility != chat.VisibilityPublic {
		writeError(w, http.StatusForbidden, "forbidden", "channel is not open for direct join")
		return
	}

	joined, err := h.channels.Join(r.Context(), g.ID, user.ID, chat.AccessReadWrite)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(joined))
}

func (h *Handler) handleLeaveChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	ch, err := h.channels.Leave(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

// ---- messages ----

func (h *Handler) handleReadMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	msgs, err := h.channels.ReadMessages(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	m, err := h.channels.SendMessage(r.Context(), r.PathValue("id"), user.ID, req.Text)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

// ---- invitations ----

func (h *Handler) handleSendInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req sendInvitationRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	inv, err := h.users.SendInvitation(r.Context(), user.ID, req.GuestID, req.ChannelID, chat.AccessLevel(req.Access))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvitationResponse(inv))
}

func (h *Handler) handleMyInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	invs, err := h.users.InvitationsForUser(r.Context(), user.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]invitationResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvitationResponse(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	ch, err := h.users.AcceptInvitation(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(ch))
}

func (h *Handler) handleRemoveInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.users.RemoveInvitation(r.Context(), r.PathValue("id"), user.ID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (chat.User, bool) {
	user, err := h.users.ByToken(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, chat.ErrNoSession) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
		} else {
			h.log.Error("api.auth.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return chat.User{}, false
	}
	return user, true
}

// writeDomainError maps the service error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidCredentials), errors.Is(err, chat.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case chat.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case chat.IsConflict(err), errors.Is(err, chat.ErrNoGuest), errors.Is(err, chat.ErrNotGuest):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case chat.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, chat.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error("api.request.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func channelList(chs []chat.Channel) []channelResponse {
	out := make([]channelResponse, 0, len(chs))
	for _, ch := range chs {
		out = append(out, toChannelResponse(ch))
	}
	return out
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
