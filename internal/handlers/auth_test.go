package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"meterbridge/internal/service"
)

func postJSON(r http.Handler, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSignUp(t *testing.T) {
	auth := &mockAuth{signUpID: 5}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-up", `{"username":"alice","password":"s3cret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		ID int `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ID != 5 {
		t.Fatalf("id = %d, want 5", resp.ID)
	}
	if auth.lastSignUpUsername != "alice" || auth.lastSignUpPassword != "s3cret" {
		t.Fatalf("credentials not forwarded: %+v", auth)
	}
}

func TestSignUp_BadBody(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}})

	for _, body := range []string{``, `{}`, `{"username":"alice"}`, `not-json`} {
		w := postJSON(r, "/auth/sign-up", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d, want 400", body, w.Code)
		}
	}
}

func TestSignUp_ServiceError(t *testing.T) {
	auth := &mockAuth{signUpErr: errors.New("username taken")}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-up", `{"username":"alice","password":"s3cret"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
}

func TestSignIn(t *testing.T) {
	auth := &mockAuth{genTokenToken: "jwt-token"}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-in", `{"username":"alice","password":"s3cret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Token != "jwt-token" {
		t.Fatalf("token = %q", resp.Token)
	}
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	auth := &mockAuth{genTokenErr: errors.New("invalid password")}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-in", `{"username":"alice","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", w.Code)
	}
}
