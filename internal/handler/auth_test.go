package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bengkelku/api/internal/domain"
	"github.com/bengkelku/api/internal/enum"
	"github.com/bengkelku/api/internal/handler"
	"github.com/bengkelku/api/internal/store"
)

const testSecret = "test-secret"

// --- Mock store ---

type mockAuthStore struct {
	users map[string]domain.User
}

func (m *mockAuthStore) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	u, ok := m.users[email]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *mockAuthStore) GetUserByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func newMockAuthStore(t *testing.T) *mockAuthStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &mockAuthStore{users: map[string]domain.User{
		"owner@bengkel.test": {
			ID:           uuid.New(),
			Email:        "owner@bengkel.test",
			Name:         "Owner",
			Role:         enum.UserRoleOwner,
			PasswordHash: string(hash),
		},
	}}
}

func setupAuthRouter(st *mockAuthStore) *chi.Mux {
	h := handler.NewAuthHandler(st, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestLogin(t *testing.T) {
	st := newMockAuthStore(t)
	r := setupAuthRouter(st)

	t.Run("valid credentials", func(t *testing.T) {
		rr := postJSON(t, r, "/auth/login", map[string]string{
			"email":    "owner@bengkel.test",
			"password": "password123",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
		}
		var resp map[string]interface{}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["access_token"] == "" || resp["refresh_token"] == "" {
			t.Error("missing tokens in response")
		}
		user := resp["user"].(map[string]interface{})
		if user["role"] != enum.UserRoleOwner {
			t.Errorf("role = %v, want OWNER", user["role"])
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := postJSON(t, r, "/auth/login", map[string]string{
			"email":    "owner@bengkel.test",
			"password": "wrong",
		})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		rr := postJSON(t, r, "/auth/login", map[string]string{
			"email":    "nobody@bengkel.test",
			"password": "password123",
		})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := postJSON(t, r, "/auth/login", map[string]string{"email": "owner@bengkel.test"})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
	})
}

func TestRefresh(t *testing.T) {
	st := newMockAuthStore(t)
	r := setupAuthRouter(st)

	// Obtain a refresh token through login
	rr := postJSON(t, r, "/auth/login", map[string]string{
		"email":    "owner@bengkel.test",
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d", rr.Code)
	}
	var loginResp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	t.Run("valid refresh token", func(t *testing.T) {
		rr := postJSON(t, r, "/auth/refresh", map[string]string{
			"refresh_token": loginResp["refresh_token"].(string),
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
		}
		var resp map[string]interface{}
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp["access_token"] == "" {
			t.Error("missing access token")
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		rr := postJSON(t, r, "/auth/refresh", map[string]string{"refresh_token": "not-a-jwt"})
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
	})
}
