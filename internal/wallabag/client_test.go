package wallabag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testServer emulates the oauth endpoint and dispatches api routes to fn.
// Requests to api routes without a valid bearer token get a 401.
type testServer struct {
	*httptest.Server

	tokenGrants []string
	validToken  string
}

func newTestServer(t *testing.T, fn http.HandlerFunc) *testServer {
	t.Helper()
	ts := &testServer{validToken: "token-1"}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v2/token" {
			var req tokenRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad token request body: %v", err)
			}
			ts.tokenGrants = append(ts.tokenGrants, req.GrantType)
			ts.validToken = fmt.Sprintf("token-%d", len(ts.tokenGrants))
			json.NewEncoder(w).Encode(tokenInfo{
				AccessToken:  ts.validToken,
				RefreshToken: "refresh-" + ts.validToken,
				TokenType:    "bearer",
				ExpiresIn:    3600,
			})
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+ts.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(responseError{
				Error:            "invalid_grant",
				ErrorDescription: "The access token provided has expired.",
			})
			return
		}
		fn(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(ts *testServer) *Client {
	return NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "user",
		Password:     "pass",
		BaseURL:      ts.URL,
	})
}

func TestClientFetchesTokenLazily(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Entry{ID: 1})
	})
	client := newTestClient(ts)

	if len(ts.tokenGrants) != 0 {
		t.Fatal("token fetched before first call")
	}
	if _, err := client.GetEntry(context.Background(), 1); err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if len(ts.tokenGrants) != 1 || ts.tokenGrants[0] != "password" {
		t.Errorf("grants = %v, want one password grant", ts.tokenGrants)
	}

	// The token is reused on the next call.
	if _, err := client.GetEntry(context.Background(), 1); err != nil {
		t.Fatalf("second GetEntry failed: %v", err)
	}
	if len(ts.tokenGrants) != 1 {
		t.Errorf("%d grants after second call, want still 1", len(ts.tokenGrants))
	}
}

func TestClientRefreshesExpiredToken(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Entry{ID: 1})
	})
	client := newTestClient(ts)

	if _, err := client.GetEntry(context.Background(), 1); err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}

	// Invalidate the token server-side; the next call sees a 401 with an
	// expired-token body and must refresh and retry transparently.
	ts.validToken = "rotated"

	if _, err := client.GetEntry(context.Background(), 1); err != nil {
		t.Fatalf("GetEntry after expiry failed: %v", err)
	}
	if len(ts.tokenGrants) != 2 || ts.tokenGrants[1] != "refresh_token" {
		t.Errorf("grants = %v, want password then refresh_token", ts.tokenGrants)
	}
}

func TestListEntriesPagination(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		resp := paginatedEntries{Pages: 2, Total: 3}
		switch page {
		case "1":
			resp.Page = 1
			resp.Embedded.Items = []Entry{{ID: 1}, {ID: 2}}
		case "2":
			resp.Page = 2
			resp.Embedded.Items = []Entry{{ID: 3}}
		default:
			t.Errorf("unexpected page %q", page)
		}
		json.NewEncoder(w).Encode(resp)
	})
	client := newTestClient(ts)

	entries, err := client.ListEntries(context.Background(), EntriesFilter{})
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("%d entries, want 3 across both pages", len(entries))
	}
	if entries[0].ID != 1 || entries[2].ID != 3 {
		t.Errorf("ids = [%d .. %d], want 1 .. 3", entries[0].ID, entries[2].ID)
	}
}

func TestDeleteEntrySplicesID(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		// The delete response omits the id.
		fmt.Fprint(w, `{"title": "Gone", "created_at": "2025-06-01T12:00:00+0000", "updated_at": "2025-06-01T12:00:00+0000"}`)
	})
	client := newTestClient(ts)

	entry, err := client.DeleteEntry(context.Background(), 42)
	if err != nil {
		t.Fatalf("DeleteEntry failed: %v", err)
	}
	if entry.ID != 42 {
		t.Errorf("id = %d, want 42 spliced back in", entry.ID)
	}
	if entry.Title == nil || *entry.Title != "Gone" {
		t.Errorf("title = %v, want Gone", entry.Title)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/entries/404.json":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": {"code": 404, "message": "Entry not found"}}`)
		case "/api/entries/403.json":
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error": {"code": 403, "message": "Access denied"}}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "boom")
		}
	})
	client := newTestClient(ts)
	ctx := context.Background()

	if _, err := client.GetEntry(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("404: err = %v, want ErrNotFound", err)
	}
	if _, err := client.GetEntry(ctx, 403); !errors.Is(err, ErrForbidden) {
		t.Errorf("403: err = %v, want ErrForbidden", err)
	}

	_, err := client.GetEntry(ctx, 500)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("500: err = %v, want APIError", err)
	}
	if apiErr.StatusCode != 500 || apiErr.Message != "boom" {
		t.Errorf("APIError = %+v, want status 500 with body", apiErr)
	}
}

func TestBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(responseError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid username and password combination",
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if _, err := client.GetEntry(context.Background(), 1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCheckExists(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/entries/exists.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("return_id") != "1" {
			t.Error("return_id=1 not requested")
		}
		if r.URL.Query().Get("url") == "https://example.com/known" {
			fmt.Fprint(w, `{"exists": 7}`)
		} else {
			fmt.Fprint(w, `{"exists": null}`)
		}
	})
	client := newTestClient(ts)
	ctx := context.Background()

	id, err := client.CheckExists(ctx, "https://example.com/known")
	if err != nil {
		t.Fatalf("CheckExists failed: %v", err)
	}
	if id == nil || *id != 7 {
		t.Errorf("exists = %v, want 7", id)
	}

	id, err = client.CheckExists(ctx, "https://example.com/unknown")
	if err != nil {
		t.Fatalf("CheckExists failed: %v", err)
	}
	if id != nil {
		t.Errorf("exists = %v for unknown url, want nil", *id)
	}
}

func TestCreateAnnotationRoute(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/annotations/9.json" || r.Method != http.MethodPost {
			t.Errorf("%s %s, want POST /api/annotations/9.json", r.Method, r.URL.Path)
		}
		var payload NewAnnotation
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		json.NewEncoder(w).Encode(Annotation{ID: 100, Text: payload.Text})
	})
	client := newTestClient(ts)

	ann, err := client.CreateAnnotation(context.Background(), 9, NewAnnotation{Text: "hi"})
	if err != nil {
		t.Fatalf("CreateAnnotation failed: %v", err)
	}
	if ann.ID != 100 || ann.Text != "hi" {
		t.Errorf("annotation = %+v, want server-assigned id 100", ann)
	}
}
