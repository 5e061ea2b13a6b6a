package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExternalURLRejectsBlockedHosts(t *testing.T) {
	assert.Error(t, ValidateExternalURL("http://localhost/admin"))
	assert.Error(t, ValidateExternalURL("http://169.254.169.254/latest/meta-data"))
}

func TestValidateExternalURLRejectsPrivateIPs(t *testing.T) {
	assert.Error(t, ValidateExternalURL("http://10.0.0.5/"))
	assert.Error(t, ValidateExternalURL("http://192.168.1.1/"))
}

func TestValidateExternalURLRejectsNonHTTPScheme(t *testing.T) {
	assert.Error(t, ValidateExternalURL("file:///etc/passwd"))
}

func TestValidateExternalURLAllowsPublicHTTPS(t *testing.T) {
	assert.NoError(t, ValidateExternalURL("https://api.example.com/v1/rates"))
}

func TestSanitizeInputStripsControlCharsAndEscapesHTML(t *testing.T) {
	out := SanitizeInput("<script>alert(1)</script>\x00")
	assert.NotContains(t, out, "\x00")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestSanitizeInputPreserveHTMLKeepsMarkupStripsControlChars(t *testing.T) {
	out := SanitizeInputPreserveHTML("<b>bold</b>\x00note")
	assert.Equal(t, "<b>bold</b>note", out)
}

func TestCSRFMiddlewarePassesThroughSafeMethods(t *testing.T) {
	handler := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddlewareRejectsMutatingRequestFromUnknownOrigin(t *testing.T) {
	handler := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFMiddlewareAllowsMutatingRequestFromAllowedOrigin(t *testing.T) {
	handler := CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", AllowedOrigins[0])
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersSetsExpectedHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestInputValidationPassesThroughSmallBody(t *testing.T) {
	var body string
	handler := InputValidation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		body = string(buf[:n])
	}))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "hello", body)
}
