package civicdesksdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitAndTransition(t *testing.T) {
	var gotAuth, gotPath, gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/cases":
			var in SubmitCaseInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{"case": map[string]any{"id": "c1", "case_code": "ISS-0001", "title": in.Title, "status": "submitted"}})
		case r.Method == http.MethodPatch && r.URL.Path == "/v1/cases/c1/status":
			var in map[string]string
			json.NewDecoder(r.Body).Decode(&in)
			gotStatus = in["status"]
			json.NewEncoder(w).Encode(map[string]any{"case": map[string]any{"id": "c1", "status": in["status"]}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	ctx := context.Background()
	d, err := c.SubmitCase(ctx, SubmitCaseInput{Title: "Pothole", Description: "Deep"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Case.Code != "ISS-0001" || d.Case.Title != "Pothole" {
		t.Fatalf("unexpected case %+v", d.Case)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	d, err = c.TransitionStatus(ctx, "c1", "under_officer_review", "")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if gotPath != "/v1/cases/c1/status" || gotStatus != "under_officer_review" || d.Case.Status != "under_officer_review" {
		t.Fatalf("unexpected transition path=%s status=%s case=%+v", gotPath, gotStatus, d.Case)
	}
}

func TestListCasesQuery(t *testing.T) {
	var gotQuery map[string][]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("X-Api-Key")
		json.NewEncoder(w).Encode(map[string]any{"items": []any{}, "next_cursor": ""})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k"
	if _, err := c.ListCases(context.Background(), []string{"submitted", "rejected"}, 10, "a|b"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotKey != "k" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if len(gotQuery["status"]) != 2 || gotQuery["limit"][0] != "10" || gotQuery["cursor"][0] != "a|b" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"precondition_failed","message":"case ISS-0001 must be assessment_submitted"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetCase(context.Background(), "ISS-0001")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "precondition_failed" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}
