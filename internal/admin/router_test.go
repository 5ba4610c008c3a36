package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/guftagu/campus-chat/internal/identity"
	"github.com/guftagu/campus-chat/internal/trust"
)

// stubStore is an in-memory ModerationStore for handler tests.
type stubStore struct {
	users    map[uuid.UUID]*trust.UserDetail
	outcomes map[uuid.UUID]trust.ReportOutcome
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    make(map[uuid.UUID]*trust.UserDetail),
		outcomes: make(map[uuid.UUID]trust.ReportOutcome),
	}
}

func (s *stubStore) ListUsers(ctx context.Context) ([]trust.UserSummary, error) {
	var out []trust.UserSummary
	for _, u := range s.users {
		out = append(out, u.UserSummary)
	}
	return out, nil
}

func (s *stubStore) UserDetail(ctx context.Context, userID uuid.UUID) (*trust.UserDetail, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, trust.ErrUserNotFound
	}
	return u, nil
}

func (s *stubStore) Unsuspend(ctx context.Context, userID uuid.UUID) (trust.ReportOutcome, error) {
	if _, ok := s.users[userID]; !ok {
		return trust.ReportOutcome{}, trust.ErrUserNotFound
	}
	return trust.ReportOutcome{ReportsCount: 0, Suspended: false}, nil
}

func (s *stubStore) ClearBlocks(ctx context.Context, userID uuid.UUID) (int, error) {
	if _, ok := s.users[userID]; !ok {
		return 0, trust.ErrUserNotFound
	}
	return 0, nil
}

func (s *stubStore) RemoveReport(ctx context.Context, userID, reportID uuid.UUID) (trust.ReportOutcome, error) {
	out, ok := s.outcomes[reportID]
	if !ok {
		return trust.ReportOutcome{}, trust.ErrReportNotFound
	}
	return out, nil
}

const testSecret = "test-secret"

func token(t *testing.T, admin bool) string {
	t.Helper()
	v := identity.NewVerifier(testSecret)
	tok, err := v.Sign(&identity.Identity{
		UserID:      uuid.New(),
		DisplayName: "Mod",
		IsAdmin:     admin,
	}, time.Now().Add(time.Hour).Unix())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doRequest(t *testing.T, h http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth(t *testing.T) {
	h := NewHandler(newStubStore(), identity.NewVerifier(testSecret)).Router()

	rec := doRequest(t, h, http.MethodGet, "/admin/users", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/admin/users", "not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/admin/users", token(t, false))
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin token: status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/admin/users", token(t, true))
	if rec.Code != http.StatusOK {
		t.Errorf("admin token: status = %d, want 200", rec.Code)
	}
}

func TestListUsers_EmptyIsArray(t *testing.T) {
	h := NewHandler(newStubStore(), identity.NewVerifier(testSecret)).Router()

	rec := doRequest(t, h, http.MethodGet, "/admin/users", token(t, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("empty list should encode as [], got %q", got)
	}
}

func TestUnsuspend(t *testing.T) {
	store := newStubStore()
	userID := uuid.New()
	store.users[userID] = &trust.UserDetail{
		UserSummary: trust.UserSummary{ID: userID, DisplayName: "Target", IsSuspended: true},
	}
	h := NewHandler(store, identity.NewVerifier(testSecret)).Router()

	rec := doRequest(t, h, http.MethodPut, "/admin/users/"+userID.String()+"/unsuspend", token(t, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Message      string `json:"message"`
		ReportsCount int    `json:"reportsCount"`
		IsSuspended  bool   `json:"isSuspended"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ReportsCount != 0 || body.IsSuspended {
		t.Errorf("response should carry post-mutation counters, got %+v", body)
	}
}

func TestRemoveReport(t *testing.T) {
	store := newStubStore()
	userID := uuid.New()
	reportID := uuid.New()
	store.users[userID] = &trust.UserDetail{
		UserSummary: trust.UserSummary{ID: userID, IsSuspended: true, ReportsCount: 3},
	}
	store.outcomes[reportID] = trust.ReportOutcome{ReportsCount: 2, Suspended: false}
	h := NewHandler(store, identity.NewVerifier(testSecret)).Router()

	path := "/admin/users/" + userID.String() + "/reports/" + reportID.String()
	rec := doRequest(t, h, http.MethodDelete, path, token(t, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		ReportsCount int  `json:"reportsCount"`
		IsSuspended  bool `json:"isSuspended"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ReportsCount != 2 || body.IsSuspended {
		t.Errorf("expected count 2 and suspension lifted, got %+v", body)
	}

	// Unknown report: 404.
	rec = doRequest(t, h, http.MethodDelete,
		"/admin/users/"+userID.String()+"/reports/"+uuid.NewString(), token(t, true))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown report: status = %d, want 404", rec.Code)
	}
}

func TestBadIDs(t *testing.T) {
	h := NewHandler(newStubStore(), identity.NewVerifier(testSecret)).Router()

	rec := doRequest(t, h, http.MethodGet, "/admin/users/not-a-uuid/details", token(t, true))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/admin/users/"+uuid.NewString()+"/details", token(t, true))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: status = %d, want 404", rec.Code)
	}
}
