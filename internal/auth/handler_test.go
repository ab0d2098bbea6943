package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestMux(service *Service) *http.ServeMux {
	handler := NewHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", handler.Register)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/refresh", handler.Refresh)
	mux.HandleFunc("POST /auth/logout", handler.Logout)
	mux.Handle("GET /auth/me", RequireAuth(service, http.HandlerFunc(handler.Me)))
	mux.Handle("PUT /auth/password", RequireAuth(service, http.HandlerFunc(handler.ChangePassword)))
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string, header http.Header) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	decoded := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func errorMessage(t *testing.T, decoded map[string]json.RawMessage) string {
	t.Helper()
	var msg string
	require.NoError(t, json.Unmarshal(decoded["error"], &msg))
	return msg
}

func tokensFrom(t *testing.T, raw json.RawMessage) TokenPair {
	t.Helper()
	var tokens TokenPair
	require.NoError(t, json.Unmarshal(raw, &tokens))
	return tokens
}

func TestRegisterLoginScenario(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	rec, decoded := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","name":"A","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	registerTokens := tokensFrom(t, decoded["tokens"])
	require.NotEmpty(t, registerTokens.AccessToken)
	require.NotEmpty(t, registerTokens.RefreshToken)

	var user PublicUser
	require.NoError(t, json.Unmarshal(decoded["user"], &user))
	require.Equal(t, "a@x.com", user.Email)

	// The row projection never includes credentials.
	require.NotContains(t, string(decoded["user"]), "password")
	require.NotContains(t, string(decoded["user"]), "refresh")

	rec, decoded = doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"a@x.com","password":"wrong"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid email or password", errorMessage(t, decoded))

	rec, decoded = doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"a@x.com","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loginTokens := tokensFrom(t, decoded["tokens"])
	require.NotEqual(t, registerTokens.RefreshToken, loginTokens.RefreshToken)
}

func TestRegisterValidation(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"bad email", `{"email":"nope","password":"secret-password-1"}`},
		{"short password", `{"email":"a@x.com","password":"short"}`},
		{"unknown field", `{"email":"a@x.com","password":"secret-password-1","admin":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := doJSON(t, mux, http.MethodPost, "/auth/register", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	rec, _ := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, decoded := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","password":"another-password-1"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "User with this email already exists", errorMessage(t, decoded))
}

func TestRefreshEndpointRotation(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	rec, decoded := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := tokensFrom(t, decoded["tokens"])

	rec, decoded = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+first.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := tokensFrom(t, decoded["tokens"])
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The consumed token is rejected on replay.
	rec, decoded = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+first.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid refresh token", errorMessage(t, decoded))
}

func TestLogoutEndpoint(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	rec, decoded := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	tokens := tokensFrom(t, decoded["tokens"])

	rec, _ = doJSON(t, mux, http.MethodPost, "/auth/logout",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, decoded = doJSON(t, mux, http.MethodPost, "/auth/logout", `{"refresh_token":"garbage"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid refresh token", errorMessage(t, decoded))
}

func TestMeEndpoint(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	rec, decoded := doJSON(t, mux, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Access token is required", errorMessage(t, decoded))

	rec, decoded = doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","name":"A","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	tokens := tokensFrom(t, decoded["tokens"])

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec, decoded = doJSON(t, mux, http.MethodGet, "/auth/me", "", header)
	require.Equal(t, http.StatusOK, rec.Code)

	var user PublicUser
	require.NoError(t, json.Unmarshal(decoded["user"], &user))
	require.Equal(t, "a@x.com", user.Email)
	require.Equal(t, "A", user.Name)
}

func TestChangePasswordEndpoint(t *testing.T) {
	mux := newTestMux(newTestService(newFakeStore()))

	rec, decoded := doJSON(t, mux, http.MethodPost, "/auth/register",
		`{"email":"a@x.com","password":"secret-password-1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	tokens := tokensFrom(t, decoded["tokens"])

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tokens.AccessToken)

	rec, _ = doJSON(t, mux, http.MethodPut, "/auth/password",
		`{"current_password":"wrong","new_password":"new-password-123"}`, header)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodPut, "/auth/password",
		`{"current_password":"secret-password-1","new_password":"new-password-123"}`, header)
	require.Equal(t, http.StatusOK, rec.Code)

	// Old refresh token died with the password change.
	rec, _ = doJSON(t, mux, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+tokens.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"a@x.com","password":"new-password-123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
