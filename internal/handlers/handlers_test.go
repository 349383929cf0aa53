package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hms-sync/internal/backend"
	"hms-sync/internal/chatsync"
	"hms-sync/internal/middleware"
	"hms-sync/internal/mocks"
	"hms-sync/internal/models"
	"hms-sync/internal/repositories"
	"hms-sync/internal/session"
)

const secret = "handler-secret"

type env struct {
	router   *gin.Engine
	api      *mocks.BackendMock
	sock     *mocks.FakeSocket
	emojis   *mocks.EmojiRepositoryMock
	sessions *session.Manager
	token    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{api: new(mocks.BackendMock), sock: mocks.NewFakeSocket(), emojis: new(mocks.EmojiRepositoryMock)}
	e.sessions = session.NewManager(session.Options{
		Dialer: func(id models.Identity, token string) (session.Backend, chatsync.Socket) {
			return e.api, e.sock
		},
	})
	t.Cleanup(func() { e.sessions.Shutdown(context.Background()) })

	e.router = gin.New()
	RegisterRoutes(e.router, Deps{
		Sessions:  e.sessions,
		Emojis:    e.emojis,
		Validator: middleware.NewTokenValidator(secret),
	})

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{ID: "doc-1", HospitalID: "h-1"}).SignedString([]byte(secret))
	require.NoError(t, err)
	e.token = raw
	return e
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) open(t *testing.T, convs []models.Conversation, notes []models.Notification) {
	t.Helper()
	e.api.On("Conversations", mock.Anything).Return(convs, nil).Once()
	e.api.On("DoctorNotifications", mock.Anything, "doc-1").Return(notes, nil).Once()
	e.api.On("UnreadNotifications", mock.Anything, "doc-1").Return([]models.Notification{}, nil).Maybe()
	w := e.do(t, http.MethodPost, "/session", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	w := httptest.NewRecorder()

	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOpenSessionIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)

	w := e.do(t, http.MethodPost, "/session", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "doc-1", body["session"].(map[string]interface{})["userId"])
	assert.Equal(t, 1, e.sock.Connects)
}

func TestCloseSession(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/session", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/session", nil).Code)
}

func TestEndpointsNeedOpenSession(t *testing.T) {
	e := newEnv(t)

	for _, path := range []string{"/conversations", "/messages", "/notifications"} {
		assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, path, nil).Code, path)
	}
}

func TestConversationsIncludeViewFields(t *testing.T) {
	e := newEnv(t)
	e.open(t, []models.Conversation{{
		PeerID:      "nurse-1",
		Peer:        models.PeerProfile{ID: "nurse-1", Name: "Ana Lopez"},
		UnreadCount: 2,
	}}, nil)

	w := e.do(t, http.MethodGet, "/conversations", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["totalUnread"])
	conv := body["conversations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "nurse-1", conv["peerId"])
	assert.Equal(t, "AL", conv["initials"])
	assert.Equal(t, false, conv["active"])
}

func TestSelectAndSendMessage(t *testing.T) {
	e := newEnv(t)
	e.open(t, []models.Conversation{{PeerID: "nurse-1", UnreadCount: 1}}, nil)
	e.api.On("Messages", mock.Anything, "nurse-1").Return([]models.Message{{ID: "m1", SenderID: "nurse-1", ReceiverID: "doc-1", Content: "hi"}}, nil).Once()
	e.api.On("MarkRead", mock.Anything, "nurse-1").Return(nil).Once()
	e.api.On("SendMessage", mock.Anything, backend.SendRequest{ReceiverID: "nurse-1", Content: "on my way"}).
		Return(models.Message{ID: "m2", SenderID: "doc-1", ReceiverID: "nurse-1", Content: "on my way"}, nil).Once()

	w := e.do(t, http.MethodPost, "/conversations/nurse-1/select", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["messages"], 1)

	w = e.do(t, http.MethodPost, "/messages", gin.H{"content": "on my way"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	msg := decode(t, w)["message"].(map[string]interface{})
	assert.Equal(t, "m2", msg["id"])
	assert.Equal(t, "confirmed", msg["state"])

	w = e.do(t, http.MethodGet, "/messages", nil)
	assert.Len(t, decode(t, w)["messages"], 2)
	e.api.AssertExpectations(t)
}

func TestSendWithoutSelectionConflicts(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)

	w := e.do(t, http.MethodPost, "/messages", gin.H{"content": "hello"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendBlankIsBadRequest(t *testing.T) {
	e := newEnv(t)
	e.open(t, []models.Conversation{{PeerID: "nurse-1"}}, nil)
	e.api.On("Messages", mock.Anything, "nurse-1").Return(nil, nil).Once()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/conversations/nurse-1/select", nil).Code)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/messages", gin.H{"content": "  "}).Code)
}

func TestFailedSendReturnsTemporaryMessageAndRetries(t *testing.T) {
	e := newEnv(t)
	e.open(t, []models.Conversation{{PeerID: "nurse-1"}}, nil)
	e.api.On("Messages", mock.Anything, "nurse-1").Return(nil, nil).Once()
	e.api.On("SendMessage", mock.Anything, mock.Anything).Return(nil, backend.ErrTransport).Once()
	e.api.On("SendMessage", mock.Anything, mock.Anything).Return(models.Message{ID: "m9"}, nil).Once()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/conversations/nurse-1/select", nil).Code)

	w := e.do(t, http.MethodPost, "/messages", gin.H{"content": "are you there"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	failed := decode(t, w)["message"].(map[string]interface{})
	assert.Equal(t, "failed", failed["state"])
	tempID := failed["id"].(string)
	assert.True(t, models.IsTempID(tempID))

	w = e.do(t, http.MethodPost, "/messages/"+tempID+"/retry", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "m9", decode(t, w)["message"].(map[string]interface{})["id"])

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/messages/"+tempID+"/retry", nil).Code)
}

func TestTypingEndpoint(t *testing.T) {
	e := newEnv(t)
	e.open(t, []models.Conversation{{PeerID: "nurse-1"}}, nil)
	e.api.On("Messages", mock.Anything, "nurse-1").Return(nil, nil).Once()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/conversations/nurse-1/select", nil).Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/typing", nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/typing", gin.H{"typing": false}).Code)

	typing := e.sock.Emitted(models.EventTyping)
	require.Len(t, typing, 2)
	assert.Equal(t, models.TypingPayload{ReceiverID: "nurse-1", Typing: true}, typing[0].Payload)
	assert.Equal(t, models.TypingPayload{ReceiverID: "nurse-1", Typing: false}, typing[1].Payload)
}

func TestNotificationsListAndRead(t *testing.T) {
	e := newEnv(t)
	created := time.Now().Add(-3700 * time.Second)
	e.open(t, nil, []models.Notification{{ID: "n1", Title: "Lab", DoctorID: "doc-1", CreatedAt: created, State: models.ReadUnread}})
	e.api.On("MarkNotificationRead", mock.Anything, "n1").Return(nil).Once()

	w := e.do(t, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["unread"])
	n := body["notifications"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "1 hour ago", n["timeAgo"])

	w = e.do(t, http.MethodPost, "/notifications/n1/read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["unread"])

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/notifications/zzz/read", nil).Code)
}

func TestMarkReadFailureIsBadGateway(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, []models.Notification{{ID: "n1", DoctorID: "doc-1", State: models.ReadUnread}})
	e.api.On("MarkNotificationRead", mock.Anything, "n1").Return(&backend.APIError{Status: 500, Message: "boom"}).Once()

	w := e.do(t, http.MethodPost, "/notifications/n1/read", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, e.do(t, http.MethodGet, "/notifications", nil))
	assert.EqualValues(t, 1, body["unread"])
}

func TestNotificationDetails(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)
	e.api.On("NotificationData", mock.Anything, "n7").Return(models.Notification{ID: "n7", PatientName: "Jane Roe"}, nil).Once()
	e.api.On("NotificationData", mock.Anything, "n8").Return(nil, &backend.APIError{Status: http.StatusNotFound, Message: "missing"}).Once()

	w := e.do(t, http.MethodGet, "/notifications/n7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane Roe", decode(t, w)["notification"].(map[string]interface{})["patientName"])

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/notifications/n8", nil).Code)
}

func TestSendNotificationJSON(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)
	e.api.On("SendNotification", mock.Anything, models.NewNotification{
		Title:          "Patient arrived",
		Body:           "Room 4",
		DoctorID:       "doc-2",
		ReceptionistID: "doc-1",
	}).Return(models.Notification{ID: "n3"}, nil).Once()

	w := e.do(t, http.MethodPost, "/notifications", gin.H{"title": "Patient arrived", "message": "Room 4", "doctor_ID": "doc-2"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	e.api.AssertExpectations(t)
}

func TestSendNotificationWithImagesNeedsUploader(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "X-ray"))
	require.NoError(t, mw.WriteField("doctor_ID", "doc-2"))
	part, err := mw.CreateFormFile("images", "xray.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/notifications", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSetView(t *testing.T) {
	e := newEnv(t)
	e.open(t, nil, nil)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPut, "/session/view", gin.H{"path": "/notifications"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/session/view", gin.H{}).Code)
}

func TestRecentEmojis(t *testing.T) {
	e := newEnv(t)
	e.emojis.On("Touch", mock.Anything, "doc-1", "👍").Return(nil).Once()
	e.emojis.On("Touch", mock.Anything, "doc-1", "abc").Return(repositories.ErrInvalidEmoji).Once()
	e.emojis.On("List", mock.Anything, "doc-1", repositories.RecentEmojiLimit).Return([]string{"👍", "😀"}, nil).Once()

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/emoji/recent", gin.H{"emoji": "👍"}).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/emoji/recent", gin.H{"emoji": "abc"}).Code)

	w := e.do(t, http.MethodGet, "/emoji/recent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"emojis":["👍","😀"]}`, w.Body.String())
	e.emojis.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	router := gin.New()
	RegisterDebugRoutes(router, nil, nil, false)

	for _, path := range []string{"/debug/audit-test", "/debug/sessions"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestDebugRoutesWithoutCollaborators(t *testing.T) {
	router := gin.New()
	RegisterDebugRoutes(router, nil, nil, true)

	for _, path := range []string{"/debug/audit-test", "/debug/sessions"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestDebugSessionsListsOpenSessions(t *testing.T) {
	e := newEnv(t)
	RegisterDebugRoutes(e.router, e.sessions, nil, true)
	e.open(t, []models.Conversation{{PeerID: "nurse-1"}, {PeerID: "nurse-2"}}, nil)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sessions []session.Summary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	got := body.Sessions[0]
	assert.Equal(t, "doc-1", got.UserID)
	assert.Equal(t, "h-1", got.HospitalID)
	assert.True(t, got.Connected)
	assert.Equal(t, 2, got.Conversations)
	assert.Equal(t, 0, got.Unread)
}
