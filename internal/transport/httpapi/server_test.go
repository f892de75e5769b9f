package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"assistify/internal/domain"
	"assistify/internal/usecase"
)

const (
	validToken = "session-token"
	chatID     = "3f1c2a4e-9d6b-4c1e-8a2f-5b7d9e0c1a23"
)

var testUser = domain.User{
	ID:        "user-1",
	Email:     "a@example.com",
	CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
}

type stubChats struct {
	chat  domain.Chat
	chats []domain.Chat
	out   usecase.AddConversationOutput
	convs []domain.Conversation
	err   error
	panic bool

	userID  string
	addIn   usecase.AddConversationInput
	listIn  usecase.ListConversationsInput
	deleted string
}

func (s *stubChats) CreateChat(_ context.Context, userID string) (domain.Chat, error) {
	s.userID = userID
	return s.chat, s.err
}

func (s *stubChats) ListChats(_ context.Context, userID string) ([]domain.Chat, error) {
	if s.panic {
		panic("boom")
	}
	s.userID = userID
	return s.chats, s.err
}

func (s *stubChats) AddConversation(_ context.Context, in usecase.AddConversationInput) (usecase.AddConversationOutput, error) {
	s.addIn = in
	return s.out, s.err
}

func (s *stubChats) ListConversations(_ context.Context, in usecase.ListConversationsInput) ([]domain.Conversation, error) {
	s.listIn = in
	return s.convs, s.err
}

func (s *stubChats) DeleteChat(_ context.Context, userID, chatID string) error {
	s.userID = userID
	s.deleted = chatID
	return s.err
}

type stubAuth struct {
	loginToken string
	verifyOut  usecase.VerifyOutput
	err        error

	loginEmail string
	verifyIn   usecase.VerifyInput
}

func (s *stubAuth) Login(_ context.Context, email string) (string, error) {
	s.loginEmail = email
	return s.loginToken, s.err
}

func (s *stubAuth) Verify(_ context.Context, in usecase.VerifyInput) (usecase.VerifyOutput, error) {
	s.verifyIn = in
	return s.verifyOut, s.err
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "missing_token", Message: "You are not authorized to access this resource."}
	}
	if token != validToken {
		return domain.User{}, &usecase.Error{Code: usecase.ErrorUnauthenticated, Reason: "invalid_token", Message: "Invalid or expired token"}
	}
	return testUser, nil
}

func newTestServer(t *testing.T, chats *stubChats, auth *stubAuth) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(chats, auth, logger)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + validToken}
}

func parseBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil, &stubAuth{}, nil)
	require.Error(t, err)
	_, err = New(&stubChats{}, nil, nil)
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubChats{}, &stubAuth{})
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"invalid bearer", map[string]string{echo.HeaderAuthorization: "Bearer nope"}, http.StatusUnauthorized},
		{"wrong scheme", map[string]string{echo.HeaderAuthorization: "Basic " + validToken}, http.StatusUnauthorized},
		{"bearer", authed(), http.StatusOK},
		{"lowercase bearer", map[string]string{echo.HeaderAuthorization: "bearer " + validToken}, http.StatusOK},
		{"legacy token header", map[string]string{"token": validToken}, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chats := &stubChats{chats: []domain.Chat{}}
			s := newTestServer(t, chats, &stubAuth{})
			rec := do(t, s, http.MethodGet, "/chat/all", "", tc.headers)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				out := parseBody[errorResponse](t, rec)
				require.Equal(t, string(usecase.ErrorUnauthenticated), out.Error)
				require.Empty(t, out.Detail)
				require.Empty(t, chats.userID, "handler must not run")
			} else {
				require.Equal(t, testUser.ID, chats.userID)
			}
		})
	}
}

func TestCreateChat(t *testing.T) {
	chat := domain.Chat{ID: chatID, UserID: testUser.ID, LatestMessage: domain.DefaultLatestMessage}
	chats := &stubChats{chat: chat}
	s := newTestServer(t, chats, &stubAuth{})

	rec := do(t, s, http.MethodPost, "/chat/new", "", authed())
	require.Equal(t, http.StatusCreated, rec.Code)
	out := parseBody[map[string]map[string]any](t, rec)
	require.Equal(t, chatID, out["chat"]["_id"])
	require.Equal(t, "New Conversation", out["chat"]["latestMessage"])
	require.Equal(t, testUser.ID, out["chat"]["user"])
}

func TestListChats_EmptyIsArray(t *testing.T) {
	s := newTestServer(t, &stubChats{}, &stubAuth{})
	rec := do(t, s, http.MethodGet, "/chat/all", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestAddConversation_HappyPath(t *testing.T) {
	conv := domain.Conversation{ID: "c-1", ChatID: chatID, Question: "What is Go?", Answer: "A language."}
	updated := domain.Chat{ID: chatID, UserID: testUser.ID, LatestMessage: "What is Go?"}
	chats := &stubChats{out: usecase.AddConversationOutput{Conversation: conv, Chat: updated}}
	s := newTestServer(t, chats, &stubAuth{})

	body := `{"question":"What is Go?","systemPrompt":"Be brief."}`
	rec := do(t, s, http.MethodPost, "/chat/"+chatID, body, authed())
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Equal(t, usecase.AddConversationInput{
		UserID:       testUser.ID,
		ChatID:       chatID,
		Question:     "What is Go?",
		SystemPrompt: "Be brief.",
	}, chats.addIn)

	out := parseBody[map[string]any](t, rec)
	require.Equal(t, "Conversation added successfully", out["message"])
	require.Equal(t, "A language.", out["conversation"].(map[string]any)["answer"])
	require.Equal(t, "What is Go?", out["updatedChat"].(map[string]any)["latestMessage"])
}

func TestAddConversation_ClientAnswerPassedThrough(t *testing.T) {
	chats := &stubChats{}
	s := newTestServer(t, chats, &stubAuth{})
	rec := do(t, s, http.MethodPost, "/chat/"+chatID, `{"question":"Q","answer":"**A**"}`, authed())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "**A**", chats.addIn.Answer)
}

func TestAddConversation_BodyValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"numeric question", `{"question":42}`},
		{"missing question", `{}`},
		{"array question", `{"question":["a"]}`},
		{"numeric answer", `{"question":"Q","answer":5}`},
		{"malformed json", `{"question":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chats := &stubChats{}
			s := newTestServer(t, chats, &stubAuth{})
			rec := do(t, s, http.MethodPost, "/chat/"+chatID, tc.body, authed())
			require.Equal(t, http.StatusBadRequest, rec.Code)
			out := parseBody[errorResponse](t, rec)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
			require.Empty(t, chats.addIn.ChatID, "use case must not run")
		})
	}
}

func TestListConversations_QueryParams(t *testing.T) {
	chats := &stubChats{convs: []domain.Conversation{{ID: "c-1", ChatID: chatID, Question: "Q", Answer: "A"}}}
	s := newTestServer(t, chats, &stubAuth{})

	rec := do(t, s, http.MethodGet, "/chat/"+chatID+"?limit=5&skip=10", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.ListConversationsInput{UserID: testUser.ID, ChatID: chatID, Limit: 5, Skip: 10}, chats.listIn)

	out := parseBody[[]map[string]any](t, rec)
	require.Len(t, out, 1)
	require.Equal(t, "c-1", out[0]["_id"])
	require.Equal(t, chatID, out[0]["chat"])
}

func TestListConversations_BadQuery(t *testing.T) {
	for _, q := range []string{"limit=abc", "skip=-1", "limit=-3"} {
		t.Run(q, func(t *testing.T) {
			chats := &stubChats{}
			s := newTestServer(t, chats, &stubAuth{})
			rec := do(t, s, http.MethodGet, "/chat/"+chatID+"?"+q, "", authed())
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Empty(t, chats.listIn.ChatID)
		})
	}
}

func TestDeleteChat(t *testing.T) {
	chats := &stubChats{}
	s := newTestServer(t, chats, &stubAuth{})
	rec := do(t, s, http.MethodDelete, "/chat/"+chatID, "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"Chat and its conversations deleted successfully"}`, rec.Body.String())
	require.Equal(t, chatID, chats.deleted)
	require.Equal(t, testUser.ID, chats.userID)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		detail string
	}{
		{"invalid input", &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_chat_id", Message: "Invalid chat ID format"}, http.StatusBadRequest, "INVALID_INPUT", ""},
		{"forbidden", &usecase.Error{Code: usecase.ErrorForbidden, Reason: "chat_not_owned", Message: "nope"}, http.StatusForbidden, "FORBIDDEN", ""},
		{"not found", &usecase.Error{Code: usecase.ErrorNotFound, Reason: "chat_not_found", Message: "No chat found"}, http.StatusNotFound, "NOT_FOUND", ""},
		{"upstream", &usecase.Error{Code: usecase.ErrorUpstream, Reason: "llm_timeout"}, http.StatusBadGateway, "UPSTREAM_ERROR", "llm_timeout"},
		{"upstream auth", &usecase.Error{Code: usecase.ErrorUpstreamAuth, Reason: "llm_auth_failed"}, http.StatusBadGateway, "UPSTREAM_AUTH_FAILURE", "llm_auth_failed"},
		{"persistence", &usecase.Error{Code: usecase.ErrorPersistence, Reason: "append_conversation_error", Err: errors.New("tx failed")}, http.StatusInternalServerError, "PERSISTENCE_ERROR", "append_conversation_error"},
		{"internal", &usecase.Error{Code: usecase.ErrorInternal, Reason: "chat_lookup_error"}, http.StatusInternalServerError, "INTERNAL_ERROR", "chat_lookup_error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &stubChats{err: tc.err}, &stubAuth{})
			rec := do(t, s, http.MethodPost, "/chat/"+chatID, `{"question":"Q"}`, authed())
			require.Equal(t, tc.status, rec.Code)

			out := parseBody[errorResponse](t, rec)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.detail, out.Detail)
			require.Equal(t, rec.Header().Get(echo.HeaderXRequestID), out.RequestID)
			require.NotEmpty(t, out.RequestID)
			require.NotContains(t, rec.Body.String(), "tx failed")
		})
	}
}

func TestErrorMapping_UsesProvidedRequestID(t *testing.T) {
	s := newTestServer(t, &stubChats{}, &stubAuth{})
	rec := do(t, s, http.MethodGet, "/chat/all", "", map[string]string{echo.HeaderXRequestID: "req-123"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "req-123", parseBody[errorResponse](t, rec).RequestID)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, &stubChats{}, &stubAuth{})
	rec := do(t, s, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", parseBody[errorResponse](t, rec).Error)
}

func TestPanicRecovered(t *testing.T) {
	s := newTestServer(t, &stubChats{panic: true}, &stubAuth{})
	rec := do(t, s, http.MethodGet, "/chat/all", "", authed())
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "INTERNAL_ERROR", parseBody[errorResponse](t, rec).Error)
}

func TestLogin(t *testing.T) {
	auth := &stubAuth{loginToken: "verify-jwt"}
	s := newTestServer(t, &stubChats{}, auth)
	rec := do(t, s, http.MethodPost, "/user/login", `{"email":"A@Example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"Verification email sent","verifyToken":"verify-jwt"}`, rec.Body.String())
	require.Equal(t, "A@Example.com", auth.loginEmail)
}

func TestVerify_AcceptsNumericAndStringOTP(t *testing.T) {
	for _, body := range []string{
		`{"verifyToken":"vt","otp":123456}`,
		`{"verifyToken":"vt","otp":"123456"}`,
	} {
		auth := &stubAuth{verifyOut: usecase.VerifyOutput{Token: "session", User: testUser}}
		s := newTestServer(t, &stubChats{}, auth)
		rec := do(t, s, http.MethodPost, "/user/verify", body, nil)
		require.Equal(t, http.StatusOK, rec.Code, body)
		require.Equal(t, usecase.VerifyInput{VerifyToken: "vt", OTP: "123456"}, auth.verifyIn)

		out := parseBody[map[string]any](t, rec)
		require.Equal(t, "Logged In Successfully", out["message"])
		require.Equal(t, "session", out["token"])
		require.Equal(t, testUser.ID, out["user"].(map[string]any)["_id"])
	}
}

func TestVerify_Errors(t *testing.T) {
	auth := &stubAuth{err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "otp_mismatch", Message: "Invalid OTP"}}
	s := newTestServer(t, &stubChats{}, auth)
	rec := do(t, s, http.MethodPost, "/user/verify", `{"verifyToken":"vt","otp":"000000"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := parseBody[errorResponse](t, rec)
	require.Equal(t, "Invalid OTP", out.Message)

	rec = do(t, s, http.MethodPost, "/user/verify", `{"verifyToken":"vt","otp":{}}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t, &stubChats{}, &stubAuth{})
	rec := do(t, s, http.MethodGet, "/user/me", "", map[string]string{"token": validToken})
	require.Equal(t, http.StatusOK, rec.Code)
	out := parseBody[map[string]map[string]any](t, rec)
	require.Equal(t, testUser.Email, out["user"]["email"])

	rec = do(t, s, http.MethodGet, "/user/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestLogging_DoesNotLeakBodies(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s, err := New(&stubChats{}, &stubAuth{}, logger)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/user/login", strings.NewReader(`{"email":"secret@example.com"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	require.Contains(t, buf.String(), `"uri":"/user/login"`)
	require.NotContains(t, buf.String(), "secret@example.com")
}
