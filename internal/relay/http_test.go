package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Complexia/durango-cli/internal/project"
)

func TestRegisterProject(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/register" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "tok-1")
	err := api.RegisterProject(context.Background(), project.Registration{
		ID:        "p-1",
		MachineID: "m-1",
		Path:      "/home/dev/repo",
		Name:      "repo",
	})
	if err != nil {
		t.Fatalf("RegisterProject: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	proj, ok := gotBody["project"].(map[string]any)
	if !ok || proj["id"] != "p-1" || proj["absolutePath"] != "/home/dev/repo" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestRegisterProjectDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "tok")
	if err := api.RegisterProject(context.Background(), project.Registration{ID: "p-1"}); err == nil {
		t.Fatal("RegisterProject succeeded on ok=false")
	}
}

func TestRegisterProjectHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"error": "bad token"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "tok")
	err := api.RegisterProject(context.Background(), project.Registration{ID: "p-1"})
	if err == nil {
		t.Fatal("RegisterProject succeeded on 401")
	}
}

func TestMachineStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/machines/me/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"online": true, "machineId": "m-1"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "tok")
	raw, err := api.MachineStatus(context.Background())
	if err != nil {
		t.Fatalf("MachineStatus: %v", err)
	}
	var status struct {
		Online    bool   `json:"online"`
		MachineID string `json:"machineId"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !status.Online || status.MachineID != "m-1" {
		t.Errorf("status = %+v", status)
	}
}

func TestExchangeAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/cli/auth/exchange" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "code-123" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(AuthExchange{Token: "tok-2", MachineID: "m-1", UserID: "u-1"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "")
	got, err := api.ExchangeAuth(context.Background(), "code-123")
	if err != nil {
		t.Fatalf("ExchangeAuth: %v", err)
	}
	if got.Token != "tok-2" || got.UserID != "u-1" {
		t.Errorf("exchange = %+v", got)
	}
}
