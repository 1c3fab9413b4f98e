package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newRouter(v *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", v.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	r.GET("/admin", v.Middleware(), RequireAdmin(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func do(r http.Handler, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_BearerAndCookie(t *testing.T) {
	v := NewVerifier("secret")
	r := newRouter(v)
	tok, err := v.Issue("user-1", "", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := do(r, "/me", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tok) })
	if w.Code != http.StatusOK || w.Body.String() != "user-1" {
		t.Fatalf("bearer: got %d %q", w.Code, w.Body.String())
	}

	w = do(r, "/me", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "token", Value: tok}) })
	if w.Code != http.StatusOK || w.Body.String() != "user-1" {
		t.Fatalf("cookie: got %d %q", w.Code, w.Body.String())
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	v := NewVerifier("secret")
	r := newRouter(v)

	if w := do(r, "/me", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", w.Code)
	}

	other, _ := NewVerifier("other").Issue("user-1", "", time.Hour)
	if w := do(r, "/me", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+other) }); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: got %d", w.Code)
	}

	expired, _ := v.Issue("user-1", "", -time.Minute)
	if w := do(r, "/me", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+expired) }); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired: got %d", w.Code)
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte("secret"))
	if w := do(r, "/me", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+none) }); w.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected alg: got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	v := NewVerifier("secret")
	r := newRouter(v)
	user, _ := v.Issue("user-1", "", time.Hour)
	admin, _ := v.Issue("admin-1", RoleAdmin, time.Hour)

	if w := do(r, "/admin", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+user) }); w.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: got %d", w.Code)
	}
	if w := do(r, "/admin", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+admin) }); w.Code != http.StatusOK {
		t.Fatalf("admin: got %d", w.Code)
	}
}
