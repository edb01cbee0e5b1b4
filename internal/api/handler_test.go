package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/resolver"
	"hostel-laundry-backend/internal/sched"
	"hostel-laundry-backend/internal/session"
	"hostel-laundry-backend/internal/store"
)

type noopNotifier struct{}

func (noopNotifier) Notify(int64, string, string) {}

var apiT0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	router *gin.Engine
	store  *store.Memory
	clock  *sched.FixedClock
}

func setupRouter(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.EnsureMachines(ctx, []model.Machine{
		{ID: "9_washer_1", Kind: model.KindWasher, Location: "9", Status: model.StatusAvailable},
		{ID: "9_dryer_1", Kind: model.KindDryer, Location: "9", Status: model.StatusAvailable},
		{ID: "17_washer_1", Kind: model.KindWasher, Location: "17", Status: model.StatusAvailable},
	}))
	require.NoError(t, mem.UpsertUser(ctx, &model.User{ID: 1, DisplayName: "Alice", Location: "9"}))
	require.NoError(t, mem.UpsertUser(ctx, &model.User{ID: 2, DisplayName: "Bob", Location: "9"}))

	clock := &sched.FixedClock{T: apiT0}
	scheduler := sched.NewScheduler(clock)
	res := resolver.New(mem, scheduler, noopNotifier{}, clock)
	sessions := session.NewManager(15 * time.Minute)

	h := NewHandler(mem, res, sessions, &webpush.Options{VAPIDPublicKey: "test-public-key"}, clock,
		[]string{"Zenith", "Nous", "Aeon"}, []string{"9", "17"})
	router := NewRouter(h, RouterOptions{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Millisecond,
	})

	return &env{router: router, store: mem, clock: clock}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

func TestGetMachinesFiltersByLocation(t *testing.T) {
	e := setupRouter(t)

	w := e.do("GET", "/api/machines?location=9", "")
	require.Equal(t, http.StatusOK, w.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "9_dryer_1", views[0]["id"])
	assert.Equal(t, "9_washer_1", views[1]["id"])
	assert.Equal(t, "Available", views[0]["status"])
}

func TestGetMachineOffersDurationMenu(t *testing.T) {
	e := setupRouter(t)

	w := e.do("GET", "/api/machines/9_dryer_1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Machine        map[string]any `json:"machine"`
		AllowedMinutes []int          `json:"allowed_minutes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int{30, 60}, resp.AllowedMinutes)
}

func TestGetMachineNotFound(t *testing.T) {
	e := setupRouter(t)

	w := e.do("GET", "/api/machines/9_washer_9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartCycle(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Running", view["status"])
	assert.Equal(t, "Alice", view["owner"])
	assert.Equal(t, float64(35), view["minutes_left"])
}

func TestStartCycleConflictReportsOwner(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	e.clock.T = apiT0.Add(5 * time.Minute)
	w = e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":2,"minutes":30}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"conflict":{"owner":"Alice","owner_id":1,"minutes_left":30}}`, w.Body.String())
}

func TestStartCycleRejectsOffMenuDuration(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":45}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "duration")
}

func TestStartCycleRejectsMissingBody(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopOwnRequiresOwner(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do("POST", "/api/machines/9_washer_1/stop", `{"user_id":2}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"not owner"}`, w.Body.String())

	w = e.do("POST", "/api/machines/9_washer_1/stop", `{"user_id":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Available", view["status"])
}

func TestForceStopRecordsAudit(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do("POST", "/api/machines/9_washer_1/force-stop", `{"user_id":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Finished", view["status"])

	audits := e.store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, int64(1), audits[0].VictimID)
	assert.Equal(t, int64(2), audits[0].OffenderID)
}

func TestCollectFinishedMachine(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Walk past the cycle end; the machine presents as Finished without
	// any timer having touched the row.
	e.clock.T = apiT0.Add(40 * time.Minute)
	w = e.do("GET", "/api/machines/9_washer_1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Finished"`)

	w = e.do("POST", "/api/machines/9_washer_1/collect", `{"user_id":1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Available", view["status"])
}

func TestPingCooldownReturnsRetryAfter(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	e.clock.T = apiT0.Add(40 * time.Minute)
	w = e.do("POST", "/api/machines/9_washer_1/ping", `{"user_id":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	e.clock.T = e.clock.T.Add(100 * time.Second)
	w = e.do("POST", "/api/machines/9_washer_1/ping", `{"user_id":2}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"cooldown","retry_after_seconds":100}`, w.Body.String())
}

func TestReportThrottledWithinWindow(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_dryer_1/report", `{"user_id":2,"message":"shows busy but drum is empty"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"status":"reported"}`, w.Body.String())

	e.clock.T = apiT0.Add(30 * time.Minute)
	w = e.do("POST", "/api/machines/9_dryer_1/report", `{"user_id":2,"message":"still wrong"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate-limited"}`, w.Body.String())
}

func TestRegistrationFlow(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/register", `{"user_id":7,"username":"dana","first_name":"Dana","pending_machine":"9_washer_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"step":"name"}`, w.Body.String())

	w = e.do("POST", "/api/register/step", `{"user_id":7,"value":"Dana K"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"step":"location","options":["9","17"]}`, w.Body.String())

	w = e.do("POST", "/api/register/step", `{"user_id":7,"value":"basement"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do("POST", "/api/register/step", `{"user_id":7,"value":"9"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"step":"house","options":["Zenith","Nous","Aeon"]}`, w.Body.String())

	w = e.do("POST", "/api/register/step", `{"user_id":7,"value":"Nous"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"registered":true,"pending_machine":"9_washer_1"}`, w.Body.String())

	u, err := e.store.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Dana K", u.DisplayName)
	assert.Equal(t, "9", u.Location)
	assert.Equal(t, "Nous", u.House)
}

func TestRegistrationShortCircuitsForKnownUser(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/register", `{"user_id":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"registered":true,"display_name":"Alice","location":"9"}`, w.Body.String())

	// restart=true forces re-onboarding even for known users.
	w = e.do("POST", "/api/register?restart=true", `{"user_id":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"step":"name"}`, w.Body.String())
}

func TestRegistrationStepWithoutFlow(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/register/step", `{"user_id":99,"value":"X"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"no registration in progress"}`, w.Body.String())
}

func TestSubscriptionLifecycle(t *testing.T) {
	e := setupRouter(t)

	w := e.do("PUT", "/api/subscriptions", `{"user_id":1,"endpoint":"https://push.example/abc","p256dh":"key","auth":"secret"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	subs, err := e.store.ListSubscriptions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	w = e.do("DELETE", "/api/subscriptions", `{"endpoint":"https://push.example/abc"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	subs, err = e.store.ListSubscriptions(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestPutSubscriptionRejectsEmptyBody(t *testing.T) {
	e := setupRouter(t)

	w := e.do("PUT", "/api/subscriptions", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	e := setupRouter(t)

	w := e.do("GET", "/api/vapid_public_key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())
}

func TestStatsCountsByLocation(t *testing.T) {
	e := setupRouter(t)

	w := e.do("POST", "/api/machines/9_washer_1/start", `{"user_id":1,"minutes":35}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do("GET", "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.JSONEq(t, `{
		"locations": [
			{"location":"17","available":1,"running":0,"finished":0},
			{"location":"9","available":1,"running":1,"finished":0}
		],
		"total": 3,
		"recent_force_stops": []
	}`, w.Body.String())
}
