package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wardenproxy/warden/internal/services"
)

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewAuthHandler(services.NewAuthService(OpenTestDB(t), "secret"))
	router := gin.New()
	router.POST("/shield/auth/signup", handler.Signup)
	router.POST("/shield/auth/login", handler.Login)
	return router
}

func postJSON(router *gin.Engine, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_Signup(t *testing.T) {
	router := newAuthRouter(t)

	t.Run("creates a user", func(t *testing.T) {
		w := postJSON(router, "/shield/auth/signup",
			`{"email": "admin@example.com", "password": "correct-horse", "name": "Admin", "role": "admin"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "admin@example.com", gjson.Get(w.Body.String(), "email").String())
		assert.Empty(t, gjson.Get(w.Body.String(), "PasswordHash").String(), "hashes never leave the API")
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		w := postJSON(router, "/shield/auth/signup",
			`{"email": "admin@example.com", "password": "correct-horse", "name": "Admin"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("short password rejected", func(t *testing.T) {
		w := postJSON(router, "/shield/auth/signup",
			`{"email": "x@example.com", "password": "short", "name": "X"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	router := newAuthRouter(t)
	w := postJSON(router, "/shield/auth/signup",
		`{"email": "admin@example.com", "password": "correct-horse", "name": "Admin"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("valid credentials return a token", func(t *testing.T) {
		w := postJSON(router, "/shield/auth/login",
			`{"email": "admin@example.com", "password": "correct-horse"}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, gjson.Get(w.Body.String(), "token").String())
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		w := postJSON(router, "/shield/auth/login",
			`{"email": "admin@example.com", "password": "wrong-password"}`)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error": "Invalid email or password"}`, w.Body.String())
	})
}
