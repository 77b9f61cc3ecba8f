package labtest

import (
	"crypto/subtle"
	"net/http"
	"net/http/httptest"
	"strings"
)

const loginPage = "<!doctype html><html><body><form method=post>Login</form></body></html>"

// SessionMiddleware requires the session cookie on API routes. Requests
// without it are redirected to an HTML login page, like the real backend.
func SessionMiddleware(cookieName, token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		ck, err := r.Cookie(cookieName)
		if err != nil || subtle.ConstantTimeCompare([]byte(ck.Value), []byte(token)) != 1 {
			http.Redirect(w, r, "/login?next="+r.URL.Path, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Mux returns the full routing table; when token is set the API requires
// a "session" cookie with that value.
func (b *Backend) Mux(token string) http.Handler {
	mux := http.NewServeMux()
	NewHandler(b).RegisterRoutes(mux)
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(loginPage))
	})
	return SessionMiddleware("session", token, mux)
}

// NewServer starts an httptest server with a demo lab under id "1".
func NewServer() (*httptest.Server, *Backend) {
	b := NewBackend()
	b.DemoLab("1")
	return httptest.NewServer(b.Mux("")), b
}
