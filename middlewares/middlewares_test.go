package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/models/mocks"
	"eventapi/utils"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(quiet))
	return r
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type errBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) errBody {
	t.Helper()
	var b errBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b
}

func get(r http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

/* ---- Authenticate / RequireRole ---- */

func TestAuthenticate(t *testing.T) {
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)
	r := newEngine()
	r.GET("/p", Authenticate(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, "%d %s %s", c.GetInt64(CtxUserID), c.GetString(CtxRole), c.GetString(CtxProfileID))
	})

	t.Run("missing token", func(t *testing.T) {
		w := get(r, "/p", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthorized", decodeErr(t, w).Code)
	})

	t.Run("not a jwt", func(t *testing.T) {
		w := get(r, "/p", map[string]string{"Authorization": "this-is-not-a-jwt"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signed with another secret", func(t *testing.T) {
		other, err := utils.NewTokenIssuer("other", time.Hour).GenerateToken(1, "a@b.c", models.RoleAdmin, "p1")
		require.NoError(t, err)
		w := get(r, "/p", map[string]string{"Authorization": "Bearer " + other})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer and bare token", func(t *testing.T) {
		tok, err := tokens.GenerateToken(7, "a@b.c", models.RoleOfficer, "p7")
		require.NoError(t, err)
		for _, h := range []string{"Bearer " + tok, tok} {
			w := get(r, "/p", map[string]string{"Authorization": h})
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "7 officer p7", w.Body.String())
		}
	})
}

func TestRequireRole(t *testing.T) {
	r := newEngine()
	r.GET("/admin",
		func(c *gin.Context) { c.Set(CtxRole, c.Query("role")); c.Next() },
		RequireRole(models.RoleAdmin, models.RoleOfficer),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	assert.Equal(t, http.StatusNoContent, get(r, "/admin?role=officer", nil).Code)
	w := get(r, "/admin?role=citizen", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeErr(t, w).Code)
}

/* ---- ErrorHandler ---- */

func TestErrorHandler(t *testing.T) {
	r := newEngine()
	r.GET("/full", func(c *gin.Context) { _ = c.Error(apperr.CapacityExceeded("Event is full.")) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("mongo exploded")) })
	r.GET("/bind", func(c *gin.Context) {
		var in struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypeBind)
		}
	})

	w := get(r, "/full", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errBody{"error", "capacity_exceeded", "Event is full."}, decodeErr(t, w))

	w = get(r, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "mongo exploded")

	w = get(r, "/bind", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Could not parse request data.", decodeErr(t, w).Message)
}

/* ---- RequestLogger ---- */

func TestRequestLoggerSetsRequestID(t *testing.T) {
	var sb strings.Builder
	log := slog.New(slog.NewTextHandler(&sb, nil))
	r := newEngine()
	r.Use(RequestLogger(log))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestID)) })

	w := get(r, "/x", nil)
	rid := w.Header().Get(HeaderRequestID)
	assert.NotEmpty(t, rid)
	assert.Equal(t, rid, w.Body.String())
	assert.Contains(t, sb.String(), "request_id="+rid)

	w = get(r, "/x", map[string]string{HeaderRequestID: "abc"})
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
}

/* ---- CapacityGate ---- */

func TestCapacityGate(t *testing.T) {
	events := mocks.NewEventRepo()
	ctx := context.Background()
	open := &models.Event{Name: "Fair", Venue: "Plaza", Capacity: 2, RegisteredCount: 1}
	full := &models.Event{Name: "Gala", Venue: "Hall", Capacity: 1, RegisteredCount: 1}
	require.NoError(t, events.Create(ctx, open))
	require.NoError(t, events.Create(ctx, full))

	r := newEngine()
	r.POST("/register", CapacityGate(events), func(c *gin.Context) {
		// the handler can still bind the body after the gate read it
		var in struct {
			EventID   string `json:"event_id"`
			FirstName string `json:"first_name"`
		}
		if err := c.ShouldBindBodyWith(&in, binding.JSON); err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypeBind)
			return
		}
		c.String(http.StatusCreated, in.FirstName+"@"+in.EventID)
	})

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"event_id":"` + open.ID.Hex() + `","first_name":"Ana"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Ana@"+open.ID.Hex(), w.Body.String())

	w = post(`{"event_id":"` + full.ID.Hex() + `","first_name":"Ben"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errBody{"error", "capacity_exceeded", "Event is full."}, decodeErr(t, w))

	w = post(`{"event_id":"64b7f0c2a1b2c3d4e5f60718"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusBadRequest, post(`{"event_id":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
}

/* ---- ResponseCache ---- */

func TestResponseCacheMissThenHit(t *testing.T) {
	_, rdb := newRedis(t)
	calls := 0
	r := newEngine()
	r.Use(ResponseCache(rdb, 30*time.Second))
	r.GET(eventsListPath, func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	w1 := get(r, eventsListPath+"?page=1", nil)
	assert.Equal(t, "MISS", w1.Header().Get("X-Cache"))

	w2 := get(r, eventsListPath+"?page=1", nil)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, w1.Body.String(), w2.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w2.Header().Get("Content-Type"))

	// a different query is a different entry
	assert.Equal(t, "MISS", get(r, eventsListPath+"?page=2", nil).Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestResponseCacheSkipsErrorsAndOtherRoutes(t *testing.T) {
	mr, rdb := newRedis(t)
	r := newEngine()
	r.Use(ResponseCache(rdb, 30*time.Second))
	r.GET(eventsItemPath, func(c *gin.Context) { _ = c.Error(apperr.NotFound("Event not found")) })
	r.GET("/api/v1/Notification", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })

	get(r, "/api/v1/Event/abc", nil)
	get(r, "/api/v1/Notification", nil)
	assert.Empty(t, mr.Keys())
}

func TestCacheInvalidatorMatchesCacheKeys(t *testing.T) {
	mr, rdb := newRedis(t)
	r := newEngine()
	r.Use(ResponseCache(rdb, time.Minute))
	r.GET(eventsListPath, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })
	r.GET(eventsItemPath, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })

	get(r, eventsListPath, nil)
	get(r, "/api/v1/Event/e1", nil)
	get(r, "/api/v1/Event/e2", nil)
	require.Len(t, mr.Keys(), 3)

	inv := utils.NewCacheInvalidator(rdb)
	ctx := context.Background()
	inv.PurgeEventItem(ctx, "e1")
	assert.Len(t, mr.Keys(), 2)
	inv.PurgeEventsList(ctx)
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "cache:events:item:e2:"))
}

/* ---- Quota / RateLimiter ---- */

func TestQuotaExceeded(t *testing.T) {
	_, rdb := newRedis(t)
	r := newEngine()
	r.Use(func(c *gin.Context) { c.Set(CtxUserID, int64(7)); c.Next() })
	r.Use(Quota(rdb, QuotaRule{Limit: 2, Window: time.Hour, KeyFn: UserDailyKey}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/x", nil).Code)
	}
	w := get(r, "/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "quota_exceeded", decodeErr(t, w).Code)
}

func TestQuotaAllowsWhenRedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	r := newEngine()
	r.Use(Quota(rdb, QuotaRule{Limit: 1, Window: time.Hour, KeyFn: func(*gin.Context) string { return "k" }}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	assert.Equal(t, http.StatusOK, get(r, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/x", nil).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(LimiterConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	t.Cleanup(rl.Close)

	r := newEngine()
	r.Use(rl.Middleware(ByIP("ip")))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	a := map[string]string{"X-Forwarded-For": "10.0.0.1"}
	b := map[string]string{"X-Forwarded-For": "10.0.0.2"}

	assert.Equal(t, http.StatusOK, get(r, "/x", a).Code)
	w := get(r, "/x", a)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	// separate bucket per client
	assert.Equal(t, http.StatusOK, get(r, "/x", b).Code)
}
