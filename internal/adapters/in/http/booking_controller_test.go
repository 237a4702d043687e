package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/logger"
	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/sqlite"
	"github.com/suchimauz/speaker-session-booking/internal/config"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Version = "test"
	cfg.Auth.BasicClients = []config.ConfigBasicClient{{Username: "booking", Password: "secret"}}
	cfg.Booking.SelectionBuffer = 4
	cfg.Booking.NotificationBuffer = 16
	return cfg
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := sqlite.NewSqliteStore(db, logger.NewNopLogger())
	if err := store.Seed(context.Background(), sqlite.DemoSpeakers); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := newTestConfig()
	svc := services.NewBookingService(store, nil, cfg, logger.NewNopLogger(),
		services.WithClock(func() time.Time { return time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC) }))
	t.Cleanup(svc.Shutdown)

	router := gin.New()
	NewBookingController(svc, cfg, logger.NewNopLogger()).RegisterRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.SetBasicAuth("booking", "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func openSession(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/v1/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session status = %d", rec.Code)
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	decode(t, rec, &resp)
	return resp.SessionID
}

func TestBookingController_BasicAuth(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized},
		{"wrong password", "booking", "nope", true, http.StatusUnauthorized},
		{"valid", "booking", "secret", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/specialties", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	// health без авторизации
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestBookingController_SearchSpeakers(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/v1/speakers?name=bell", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Speakers []domain.Speaker `json:"speakers"`
	}
	decode(t, rec, &resp)
	if len(resp.Speakers) != 1 || resp.Speakers[0].Name != "Marcus Bell" {
		t.Errorf("speakers = %+v", resp.Speakers)
	}
}

func TestBookingController_BookingFlow(t *testing.T) {
	router := newTestRouter(t)
	sessionID := openSession(t, router)
	base := "/api/v1/sessions/" + sessionID
	speaker := sqlite.DemoSpeakers[0]

	rec := do(t, router, http.MethodPost, base+"/speaker", fmt.Sprintf(`{"speakerId":%q,"speakerName":%q}`, speaker.ID, speaker.Name))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("select speaker status = %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var days struct {
			Days []domain.DayCell `json:"days"`
		}
		decode(t, do(t, router, http.MethodGet, base+"/calendar", ""), &days)
		if len(days.Days) == domain.CalendarDaysAhead {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("calendar not loaded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = do(t, router, http.MethodPut, base+"/date", `{"date":"2024-03-10"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("past date status = %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, base+"/assignments", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("commit without verdict status = %d", rec.Code)
	}

	rec = do(t, router, http.MethodPut, base+"/date", `{"date":"2024-03-12"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select date status = %d body=%s", rec.Code, rec.Body.String())
	}
	var dateResp struct {
		Outcome domain.OutcomeKind   `json:"outcome"`
		Session SessionStateResponse `json:"session"`
	}
	decode(t, rec, &dateResp)
	if dateResp.Outcome != domain.OutcomeAvailable || !dateResp.Session.CanCommit || dateResp.Session.Phase != domain.PhaseDateValidated {
		t.Errorf("date response = %+v", dateResp)
	}

	rec = do(t, router, http.MethodPost, base+"/assignments", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit status = %d body=%s", rec.Code, rec.Body.String())
	}
	var assignment domain.Assignment
	decode(t, rec, &assignment)
	if assignment.SessionDate.String() != "2024-03-12" {
		t.Errorf("assignment = %+v", assignment)
	}

	rec = do(t, router, http.MethodGet, base+"/notifications", "")
	var notes struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	decode(t, rec, &notes)
	if len(notes.Notifications) != 3 || notes.Notifications[2].Severity != domain.SeveritySuccess {
		t.Errorf("notifications = %+v", notes.Notifications)
	}

	rec = do(t, router, http.MethodDelete, base, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("close status = %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, base, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("snapshot after close status = %d", rec.Code)
	}
}

func TestBookingController_BadRequests(t *testing.T) {
	router := newTestRouter(t)
	sessionID := openSession(t, router)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad session id", http.MethodGet, "/api/v1/sessions/not-a-uuid", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/v1/sessions/" + uuid.NewString(), "", http.StatusNotFound},
		{"missing speaker id", http.MethodPost, "/api/v1/sessions/" + sessionID + "/speaker", `{"speakerName":"x"}`, http.StatusBadRequest},
		{"malformed date", http.MethodPut, "/api/v1/sessions/" + sessionID + "/date", `{"date":"12/03/2024"}`, http.StatusBadRequest},
		{"date without speaker", http.MethodPut, "/api/v1/sessions/" + sessionID + "/date", `{"date":"2024-03-12"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("x: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{domain.ErrSpeakerNotFound, http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrPastDate, http.StatusUnprocessableEntity},
		{domain.ErrCommitNotPermitted, http.StatusConflict},
		{domain.ErrConflictOnCommit, http.StatusConflict},
		{domain.ErrOperationInFlight, http.StatusConflict},
		{domain.ErrStaleResult, http.StatusConflict},
		{domain.ErrSessionLimit, http.StatusTooManyRequests},
		{fmt.Errorf("x: %w", domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBookingController_ListAssignments(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name      string
		speakerID string
		want      int
	}{
		{"known speaker", sqlite.DemoSpeakers[0].ID, http.StatusOK},
		{"unknown speaker", "missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/api/v1/speakers/"+tt.speakerID+"/assignments", "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp struct {
				Assignments []domain.Assignment `json:"assignments"`
			}
			decode(t, rec, &resp)
			if resp.Assignments == nil || len(resp.Assignments) != 0 {
				t.Errorf("assignments = %+v, want empty list", resp.Assignments)
			}
		})
	}
}
