package host

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/goteamwork/roomsync/internal/model"
)

// authedHandler receives the user resolved from the bearer token.
type authedHandler func(w http.ResponseWriter, r *http.Request, user *model.User)

// auth wraps a handler with bearer-token authentication.
func (s *Server) auth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		user, err := s.core.AuthenticateToken(parts[1])
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, user)
	}
}

// requireSelf rejects requests acting on behalf of another user. An
// empty id in the body defaults to the authenticated user.
func requireSelf(w http.ResponseWriter, reqUserID string, user *model.User) (string, bool) {
	if reqUserID == "" {
		return user.ID, true
	}
	if reqUserID != user.ID {
		http.Error(w, "Forbidden: userId does not match token", http.StatusForbidden)
		return "", false
	}
	return reqUserID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	user, token, err := s.core.CreateUser(req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateUserResponse{User: *user, Token: token})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Users())
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Rooms())
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		UserID    string `json:"userId"`
		InviterID string `json:"inviterId"`
		Message   string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	inviterID, ok := requireSelf(w, req.InviterID, user)
	if !ok {
		return
	}

	inviteID, expiresAt, err := s.core.Invite(req.UserID, inviterID, req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{
		Message:   "Invitation sent",
		InviteID:  inviteID,
		ExpiresAt: expiresAt,
	})
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		InviteID  string `json:"inviteId"`
		InviteeID string `json:"inviteeId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.InviteID == "" {
		http.Error(w, "inviteId is required", http.StatusBadRequest)
		return
	}
	inviteeID, ok := requireSelf(w, req.InviteeID, user)
	if !ok {
		return
	}

	roomID, err := s.core.AcceptInvite(req.InviteID, inviteeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Invite accepted", RoomID: roomID})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		UserID string `json:"userId"`
		RoomID string `json:"roomId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireSelf(w, req.UserID, user)
	if !ok {
		return
	}

	room, err := s.core.JoinRoom(userID, req.RoomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Joined room " + room.Name, RoomID: room.ID})
}

func (s *Server) handleJoinRequest(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		UserID string `json:"userId"`
		RoomID string `json:"roomId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireSelf(w, req.UserID, user)
	if !ok {
		return
	}

	if err := s.core.RequestJoin(userID, req.RoomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Request sent to room owner"})
}

func (s *Server) handleApproveJoin(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		OwnerID     string `json:"ownerId"`
		RequesterID string `json:"requesterId"`
		RoomID      string `json:"roomId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	ownerID, ok := requireSelf(w, req.OwnerID, user)
	if !ok {
		return
	}

	if err := s.core.ApproveJoin(ownerID, req.RequesterID, req.RoomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Approved"})
}

func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		RoomID  string `json:"roomId"`
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireSelf(w, req.UserID, user)
	if !ok {
		return
	}

	msg, err := s.core.SendChat(req.RoomID, userID, req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Message sent: " + msg.ID})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user *model.User) {
	roomID := mux.Vars(r)["roomId"]
	if user.RoomID == nil || *user.RoomID != roomID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, s.core.ChatHistory(roomID))
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request, user *model.User) {
	roomID := mux.Vars(r)["roomId"]
	if !s.core.UserInRoom(user.ID, roomID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	sinceID := strings.TrimSpace(r.URL.Query().Get("since"))
	sinceHash := strings.TrimSpace(r.URL.Query().Get("sinceHash"))
	writeJSON(w, http.StatusOK, s.core.Operations(roomID, sinceID, sinceHash))
}

func (s *Server) handleShareClipboard(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		Item     model.ClipboardItem `json:"item"`
		UserID   string              `json:"userId"`
		UserName string              `json:"userName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireSelf(w, req.UserID, user)
	if !ok {
		return
	}

	op, err := s.core.ShareClipboard(userID, req.UserName, req.Item)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleSavePendingFiles(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		UserID   string   `json:"userId"`
		UserName string   `json:"userName"`
		Paths    []string `json:"paths"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireSelf(w, req.UserID, user)
	if !ok {
		return
	}

	op, canonical, err := s.core.SavePendingFiles(userID, req.UserName, req.Paths)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.PendingFilesResponse{Op: *op, CanonicalPaths: canonical})
}

func (s *Server) handleUploadArchive(w http.ResponseWriter, r *http.Request, user *model.User) {
	opID := mux.Vars(r)["opId"]

	data, err := io.ReadAll(io.LimitReader(r.Body, maxArchiveSize+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	if len(data) > maxArchiveSize {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := s.core.AttachArchive(opID, data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Archive stored"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, user *model.User) {
	opID := mux.Vars(r)["opId"]
	data, err := s.core.Archive(opID)
	if err != nil {
		if errors.Is(err, ErrNoArchive) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="shared_files_`+opID+`.tar"`)
	w.Write(data)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	userID, ok := requireSelf(w, req.UserID, user)
	if !ok {
		return
	}

	if err := s.core.LeaveRoom(userID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.APIResponse{Message: "Left room"})
}

// handleSSE upgrades the request to a long-lived event stream. The user
// is cleaned up when the stream closes without a reconnect.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	target := newSSETarget(w, flusher)
	s.core.Push().attach(userID, target)

	if err := s.core.Push().SendToUser(userID, model.Connected{Status: "connected"}); err != nil {
		s.logger.Warn(r.Context(), "initial sse event failed", "userId", userID, "error", err)
	}

	defer func() {
		detached := s.core.Push().detach(userID, target)
		if !detached {
			// A newer connection took over; nothing to clean up.
			return
		}
		s.core.DropUser(userID)
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-target.done:
			return
		case <-ticker.C:
			hb := model.Heartbeat{Timestamp: time.Now().Unix()}
			if err := s.core.Push().SendToUser(userID, hb); err != nil {
				return
			}
		}
	}
}
