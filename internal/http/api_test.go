package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"deafauth/internal/auth"
	"deafauth/internal/domain"
	"deafauth/internal/repository/memory"
	"deafauth/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	users  *memory.UserRepository
	logs   *logtest.Hook
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, hook := logtest.NewNullLogger()

	users := memory.NewUserRepository()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: "http-test-secret"})
	require.NoError(t, err)
	svc, err := service.NewUserService(users, auth.NewBcryptHasher(bcrypt.MinCost), tokens, logger)
	require.NoError(t, err)

	router := gin.New()
	NewHandler(svc, service.NewGuard(tokens, users, logger), users, []string{"https://mbtq.dev"}, logger).RegisterRoutes(router)
	return &testServer{router: router, users: users, logs: hook}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func (s *testServer) registerAndSignIn(t *testing.T) (string, map[string]any) {
	t.Helper()
	rec, _ := s.do(t, http.MethodPost, "/auth/register", gin.H{"username": "abc", "email": "a@x.com", "password": "Secret1!"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "a@x.com", "password": "Secret1!"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body["access_token"].(string), body
}

func TestRegisterSignInProfileScenario(t *testing.T) {
	s := newTestServer(t)

	token, body := s.registerAndSignIn(t)
	assert.Equal(t, "bearer", body["token_type"])
	assert.EqualValues(t, 7200, body["expires_in"])

	profile := body["user_profile"].(map[string]any)
	assert.Equal(t, "a@x.com", profile["email"])
	assert.NotNil(t, profile["last_login"])
	assert.Len(t, profile["accessibility_preferences"], 6)

	rec, me := s.do(t, http.MethodGet, "/auth/profile", nil, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", me["username"])
	assert.Equal(t, "ASL", me["preferred_sign_language"])
	assert.Equal(t, false, me["deaf_community_verified"])
	assert.NotContains(t, me, "password")
	assert.NotContains(t, me, "hashed_password")
	assert.NotContains(t, rec.Body.String(), "$2a$")

	tampered := token[:len(token)-4] + "AAAA"
	if tampered == token {
		tampered = token[:len(token)-4] + "BBBB"
	}
	rec, errBody := s.do(t, http.MethodGet, "/auth/profile", nil, bearer(tampered))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, service.ErrUnauthorized.Error(), errBody["error"])
}

func TestSignInRejections(t *testing.T) {
	s := newTestServer(t)
	s.registerAndSignIn(t)

	rec, wrong := s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "a@x.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec, unknown := s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "b@x.com", "password": "Secret1!"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrong, unknown)
}

func TestLegacyLoginRoute(t *testing.T) {
	s := newTestServer(t)
	s.registerAndSignIn(t)

	rec, body := s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "Secret1!"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["access_token"])
}

func TestRegisterErrors(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/auth/register", gin.H{"username": "abc", "email": "a@x.com", "password": "pw"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/auth/register", gin.H{"username": "xyz", "email": "a@x.com", "password": "pw"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered in DeafAuth system", body["error"])

	rec, body = s.do(t, http.MethodPost, "/auth/register", gin.H{"username": "ab", "email": "b@x.com", "password": "pw"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.ErrWeakUsername.Error(), body["error"])

	rec, body = s.do(t, http.MethodPost, "/auth/register", gin.H{"username": "abc", "email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "is required", fields["password"])

	rec, body = s.do(t, http.MethodPost, "/auth/register", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body must be valid JSON", body["error"])

	n, _ := s.users.Count(context.Background())
	assert.Equal(t, 1, n)
}

func TestRegisterWithOptions(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/auth/register", gin.H{
		"username":                    "signer",
		"email":                       "s@x.com",
		"password":                    "pw",
		"preferred_sign_language":     "BSL",
		"accessibility_preferences":   gin.H{"captions_enabled": false},
		"deaf_community_verification": true,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	user, err := s.users.FindByEmail(context.Background(), "s@x.com")
	require.NoError(t, err)
	assert.Equal(t, "BSL", user.PreferredSignLanguage)
	assert.True(t, user.DeafCommunityVerified)
	assert.Equal(t, false, user.AccessibilityPreferences["captions_enabled"])
	assert.Equal(t, true, user.AccessibilityPreferences["gesture_navigation"])
}

func TestUpdatePreferences(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.registerAndSignIn(t)

	rec, body := s.do(t, http.MethodPut, "/auth/accessibility-preferences", gin.H{"high_contrast_mode": true}, bearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Accessibility preferences updated successfully", body["message"])

	prefs := body["user_profile"].(map[string]any)["accessibility_preferences"].(map[string]any)
	assert.Equal(t, true, prefs["high_contrast_mode"])
	assert.Equal(t, "high", prefs["sign_language_video_quality"])
	assert.Len(t, prefs, 6)

	rec, _ = s.do(t, http.MethodPut, "/auth/accessibility-preferences", `["not","an","object"]`, bearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPut, "/auth/accessibility-preferences", gin.H{"x": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileRequiresBearer(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.registerAndSignIn(t)

	for name, header := range map[string]http.Header{
		"missing":      nil,
		"wrong scheme": {"Authorization": []string{"Basic " + token}},
		"no token":     {"Authorization": []string{"Bearer "}},
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := s.do(t, http.MethodGet, "/auth/profile", nil, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	rec, _ := s.do(t, http.MethodGet, "/auth/profile", nil, http.Header{"Authorization": []string{"bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t)
	s.registerAndSignIn(t)

	rec, body := s.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DeafAuth", body["service"])
	assert.Equal(t, "1.0.0", body["version"])

	rec, body = s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["deaf_community_ready"])
	assert.EqualValues(t, 1, body["users"])
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodOptions, "/auth/signin", nil, http.Header{"Origin": []string{"https://mbtq.dev"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://mbtq.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec, _ = s.do(t, http.MethodGet, "/", nil, http.Header{"Origin": []string{"https://evil.example"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogging(t *testing.T) {
	s := newTestServer(t)
	s.registerAndSignIn(t)
	s.logs.Reset()

	s.do(t, http.MethodGet, "/health", nil, nil)
	s.do(t, http.MethodGet, "/auth/profile", nil, nil)

	var requests []string
	for _, e := range s.logs.AllEntries() {
		if e.Message == "request" {
			requests = append(requests, e.Data["path"].(string))
			assert.Equal(t, http.StatusUnauthorized, e.Data["status"])
		}
	}
	assert.Equal(t, []string{"/auth/profile"}, requests)
}

type brokenUsers struct {
	service.UserService
}

func (brokenUsers) SignIn(context.Context, string, string) (*service.SignInResult, error) {
	return nil, errors.New("store unavailable")
}

type brokenCounter struct{}

func (brokenCounter) Count(context.Context) (int, error) { return 0, errors.New("store unavailable") }

type nopGuard struct{}

func (nopGuard) Authenticate(context.Context, string) (*domain.User, error) {
	return nil, service.ErrUnauthorized
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	router := gin.New()
	NewHandler(brokenUsers{}, nopGuard{}, brokenCounter{}, nil, logger).RegisterRoutes(router)
	s := &testServer{router: router, logs: hook}

	rec, body := s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "a@x.com", "password": "pw"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])
	assert.False(t, strings.Contains(rec.Body.String(), "store unavailable"))

	rec, body = s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}
