package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/echoboard/echoboard/internal/config"
	"github.com/echoboard/echoboard/internal/directory"
	"github.com/echoboard/echoboard/internal/dynamo"
	"github.com/echoboard/echoboard/internal/middleware"
	"github.com/echoboard/echoboard/internal/token"
	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := dynamo.NewMemory()
	caches := directory.NewCaches(directory.CacheOptions{SlugTTL: time.Hour, ProjectTTL: time.Hour})
	dir := directory.New(store, caches, directory.Options{
		ProjectTable:       "projects",
		SlugTable:          "slugs",
		SlugByProjectIndex: "slugByProjectId",
		SlugCacheRead:      true,
		ProjectCacheRead:   true,
	})
	tokens := token.New(store, "verifyTokens", 6, 15*time.Minute)

	projectHandler := NewProjectHandler(dir, nil)
	tokenHandler := NewTokenHandler(tokens)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(&config.Config{AuthMode: config.AuthModeHeader}))
		r.Post("/projects", projectHandler.Create)
		r.Get("/projects/{projectId}", projectHandler.Get)
		r.Put("/projects/{projectId}", projectHandler.Update)
		r.Delete("/projects/{projectId}", projectHandler.Delete)
		r.Post("/projects/{projectId}/webhooks", projectHandler.AddWebhookListener)
		r.Delete("/projects/{projectId}/webhooks", projectHandler.RemoveWebhookListener)
		r.Get("/slugs/{slug}", projectHandler.GetBySlug)
		r.Post("/tokens", tokenHandler.Create)
		r.Post("/tokens/verify", tokenHandler.Verify)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, account, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set("X-Account-Id", account)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestProjectLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/projects", "acct_1",
		`{"config":{"slug":"acme","name":"Acme"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created ProjectResponse
	decodeBody(t, rec, &created)
	if created.ProjectID == "" || created.Version == "" {
		t.Fatalf("created = %+v", created)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/projects/"+created.ProjectID, "acct_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// Another account cannot see the project.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/projects/"+created.ProjectID, "acct_2", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-account get status = %d", rec.Code)
	}

	// Slug resolution is not account-scoped.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/slugs/acme", "acct_2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/projects/"+created.ProjectID, "acct_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/api/v1/slugs/acme?noCache=1", "acct_1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("resolve after delete status = %d", rec.Code)
	}
}

func TestProjectConflicts(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/projects", "acct_1",
		`{"config":{"slug":"acme"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created ProjectResponse
	decodeBody(t, rec, &created)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/projects", "acct_2",
		`{"config":{"slug":"acme"}}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate slug status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/projects/"+created.ProjectID, "acct_1",
		`{"config":{"slug":"acme","name":"New"},"previousVersion":"stale"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale version status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/projects/"+created.ProjectID, "acct_1",
		`{"config":{"slug":"acme","name":"New"},"previousVersion":"`+created.Version+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestProjectValidationAndAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/projects", "acct_1",
		`{"config":{"slug":"Not Valid!"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid slug status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/projects", "",
		`{"config":{"slug":"acme"}}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing account status = %d", rec.Code)
	}
}

func TestWebhookEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/projects", "acct_1",
		`{"config":{"slug":"acme"}}`)
	var created ProjectResponse
	decodeBody(t, rec, &created)

	body := `{"resourceType":"post","eventType":"created","url":"https://example.com/hook"}`
	rec = doRequest(t, router, http.MethodPost, "/api/v1/projects/"+created.ProjectID+"/webhooks", "acct_1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("add webhook status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/projects/"+created.ProjectID+"/webhooks", "acct_1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove webhook status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/projects/"+created.ProjectID+"/webhooks", "acct_1",
		`{"resourceType":"post"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete webhook status = %d", rec.Code)
	}
}

func TestTokenEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tokens", "acct_1",
		`{"targetParts":["email","user@example.com"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create token status = %d", rec.Code)
	}
	var created struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &created)
	if created.Token == "" {
		t.Fatal("empty token")
	}

	verify := `{"token":"` + created.Token + `","targetParts":["email","user@example.com"]}`
	rec = doRequest(t, router, http.MethodPost, "/api/v1/tokens/verify", "acct_1", verify)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}
	var result struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, rec, &result)
	if !result.Valid {
		t.Fatal("expected valid token")
	}

	// Second verification fails: the token was consumed.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/tokens/verify", "acct_1", verify)
	decodeBody(t, rec, &result)
	if result.Valid {
		t.Fatal("expected consumed token to be invalid")
	}
}
