package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// HTTPBackend implements Backend against a remote host's REST API.
// All methods are safe for concurrent use; the token is set once by
// CreateUser before any concurrent callers exist.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	token   string
	timeout time.Duration
	logger  logging.Logger
}

func NewHTTPBackend(baseURL string, timeout time.Duration, logger logging.Logger) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Connect probes the host before the session starts. The host may still
// be coming up, so the probe retries twice at a fixed interval before
// giving up.
func (b *HTTPBackend) Connect(ctx context.Context) error {
	backoff := retry.WithMaxRetries(2, retry.NewConstant(2*time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, b.baseURL+"/api/users", nil)
		if err != nil {
			return err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			b.logger.Warn(ctx, "host not reachable, retrying", "url", b.baseURL, "error", err)
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		resp.Body.Close()
		return nil
	})
}

// doJSON performs one request with a per-call timeout, bearer auth and
// JSON bodies on both sides. A nil out discards the response body.
func (b *HTTPBackend) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *HTTPBackend) CreateUser(ctx context.Context, name string) (*model.User, string, error) {
	req := struct {
		Name string `json:"name"`
	}{Name: name}
	var resp model.CreateUserResponse
	if err := b.doJSON(ctx, http.MethodPost, "/api/users", req, &resp); err != nil {
		return nil, "", err
	}
	b.token = resp.Token
	return &resp.User, resp.Token, nil
}

func (b *HTTPBackend) FetchUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := b.doJSON(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (b *HTTPBackend) FetchRooms(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	if err := b.doJSON(ctx, http.MethodGet, "/api/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (b *HTTPBackend) FetchOperations(ctx context.Context, roomID, sinceID, sinceHash string) ([]model.Operation, error) {
	path := "/api/operations/" + url.PathEscape(roomID)
	q := url.Values{}
	if sinceID != "" {
		q.Set("since", sinceID)
	}
	if sinceHash != "" {
		q.Set("sinceHash", sinceHash)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var ops []model.Operation
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func (b *HTTPBackend) FetchChatHistory(ctx context.Context, roomID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := b.doJSON(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(roomID), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (b *HTTPBackend) SendChatMessage(ctx context.Context, roomID, userID, message string) error {
	req := struct {
		RoomID  string `json:"roomId"`
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}{RoomID: roomID, UserID: userID, Message: message}
	return b.doJSON(ctx, http.MethodPost, "/api/chat", req, nil)
}

func (b *HTTPBackend) ShareClipboard(ctx context.Context, userID, userName string, item model.ClipboardItem) (*model.Operation, error) {
	req := struct {
		Item     model.ClipboardItem `json:"item"`
		UserID   string              `json:"userId"`
		UserName string              `json:"userName"`
	}{Item: item, UserID: userID, UserName: userName}
	var op model.Operation
	if err := b.doJSON(ctx, http.MethodPost, "/api/clipboard", req, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (b *HTTPBackend) UploadArchive(ctx context.Context, opID string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	path := b.baseURL + "/api/clipboard/" + url.PathEscape(opID) + "/zip"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	return nil
}

func (b *HTTPBackend) DownloadArchive(ctx context.Context, opID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/download/"+url.PathEscape(opID), nil)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (b *HTTPBackend) InviteUser(ctx context.Context, inviteeID, inviterID, message string) (string, int64, error) {
	req := struct {
		UserID    string `json:"userId"`
		InviterID string `json:"inviterId"`
		Message   string `json:"message"`
	}{UserID: inviteeID, InviterID: inviterID, Message: message}
	var resp model.APIResponse
	if err := b.doJSON(ctx, http.MethodPost, "/api/invite", req, &resp); err != nil {
		return "", 0, err
	}
	return resp.InviteID, resp.ExpiresAt, nil
}

func (b *HTTPBackend) AcceptInvite(ctx context.Context, inviteID, inviteeID string) (string, error) {
	req := struct {
		InviteID  string `json:"inviteId"`
		InviteeID string `json:"inviteeId"`
	}{InviteID: inviteID, InviteeID: inviteeID}
	var resp model.APIResponse
	if err := b.doJSON(ctx, http.MethodPost, "/api/invite/accept", req, &resp); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

func (b *HTTPBackend) RequestJoin(ctx context.Context, userID, roomID string) error {
	req := struct {
		UserID string `json:"userId"`
		RoomID string `json:"roomId"`
	}{UserID: userID, RoomID: roomID}
	return b.doJSON(ctx, http.MethodPost, "/api/join/request", req, nil)
}

func (b *HTTPBackend) ApproveJoin(ctx context.Context, ownerID, requesterID, roomID string) error {
	req := struct {
		OwnerID     string `json:"ownerId"`
		RequesterID string `json:"requesterId"`
		RoomID      string `json:"roomId"`
	}{OwnerID: ownerID, RequesterID: requesterID, RoomID: roomID}
	return b.doJSON(ctx, http.MethodPost, "/api/join/approve", req, nil)
}

func (b *HTTPBackend) JoinRoom(ctx context.Context, userID, roomID string) error {
	req := struct {
		UserID string `json:"userId"`
		RoomID string `json:"roomId"`
	}{UserID: userID, RoomID: roomID}
	return b.doJSON(ctx, http.MethodPost, "/api/join", req, nil)
}

func (b *HTTPBackend) LeaveRoom(ctx context.Context, userID string) error {
	req := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	return b.doJSON(ctx, http.MethodPost, "/api/leave", req, nil)
}

// SavePendingFiles hands dropped files over by absolute path. The host
// refuses paths it cannot read, which callers treat as the signal to
// fall back to the contents route.
func (b *HTTPBackend) SavePendingFiles(ctx context.Context, userID, userName string, paths []string) (*model.Operation, []string, error) {
	req := struct {
		UserID   string   `json:"userId"`
		UserName string   `json:"userName"`
		Paths    []string `json:"paths"`
	}{UserID: userID, UserName: userName, Paths: paths}
	var resp model.PendingFilesResponse
	if err := b.doJSON(ctx, http.MethodPost, "/api/clipboard/files", req, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Op, resp.CanonicalPaths, nil
}

// SaveDroppedFiles shares dropped files as a clipboard operation and
// streams their packed contents to the host.
func (b *HTTPBackend) SaveDroppedFiles(ctx context.Context, userID, userName string, files []model.DroppedFilePayload) (*model.Operation, error) {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	item := model.ClipboardItem{
		Type:      model.ClipboardFile,
		Files:     names,
		FileCount: len(files),
	}
	op, err := b.ShareClipboard(ctx, userID, userName, item)
	if err != nil {
		return nil, err
	}
	data, err := PackArchive(files)
	if err != nil {
		return nil, err
	}
	if err := b.UploadArchive(ctx, op.ID, data); err != nil {
		return nil, err
	}
	return op, nil
}

func (b *HTTPBackend) StreamURL(userID string) string {
	return b.baseURL + "/api/sse?userId=" + url.QueryEscape(userID)
}
