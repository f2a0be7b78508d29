package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// =========== Mock user store ===========

type mockUserStore struct {
	users map[string]*User
	err   error
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func newLoginHandler(store UserStore) *Handler {
	issuer := NewTokenIssuer(testSigningKey, "review-server", time.Hour)
	return NewHandler(store, issuer, zerolog.New(os.Stderr))
}

func postLogin(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestLogin_Success(t *testing.T) {
	store := &mockUserStore{users: map[string]*User{
		"pat": {
			ID:           "user-1",
			Username:     "pat",
			Name:         "Pat Reviewer",
			Roles:        []string{"reviewer"},
			PasswordHash: HashPassword("s3cret"),
		},
	}}
	h := newLoginHandler(store)

	rec := postLogin(t, h, `{"username":"pat","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected token_type Bearer, got %q", resp.TokenType)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expected expires_in 3600, got %d", resp.ExpiresIn)
	}

	// The issued token must validate against the same signing key.
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	c := e.NewContext(req, httptest.NewRecorder())
	mw := Middleware(testSigningKey, nil)(func(c echo.Context) error {
		if got := UserIDFromContext(c.Request().Context()); got != "user-1" {
			t.Errorf("expected user-1 from issued token, got %q", got)
		}
		return c.NoContent(http.StatusOK)
	})
	if err := mw(c); err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	store := &mockUserStore{users: map[string]*User{
		"pat": {ID: "user-1", Username: "pat", PasswordHash: HashPassword("s3cret")},
	}}
	h := newLoginHandler(store)

	rec := postLogin(t, h, `{"username":"pat","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_UnknownUserSameResponseAsWrongPassword(t *testing.T) {
	store := &mockUserStore{users: map[string]*User{
		"pat": {ID: "user-1", Username: "pat", PasswordHash: HashPassword("s3cret")},
	}}
	h := newLoginHandler(store)

	recUnknown := postLogin(t, h, `{"username":"nobody","password":"s3cret"}`)
	recWrong := postLogin(t, h, `{"username":"pat","password":"wrong"}`)

	if recUnknown.Code != recWrong.Code {
		t.Errorf("unknown user and wrong password must not be distinguishable: %d vs %d",
			recUnknown.Code, recWrong.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := newLoginHandler(&mockUserStore{})
	for _, body := range []string{`{}`, `{"username":"pat"}`, `{"password":"x"}`} {
		rec := postLogin(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	h := newLoginHandler(&mockUserStore{err: fmt.Errorf("connection refused")})
	rec := postLogin(t, h, `{"username":"pat","password":"s3cret"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash := HashPassword("s3cret")
	if !VerifyPassword("s3cret", hash) {
		t.Error("expected matching password to verify")
	}
	if VerifyPassword("other", hash) {
		t.Error("expected mismatched password to fail")
	}
}
