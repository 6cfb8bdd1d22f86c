package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestResponseCache(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	r := gin.New()
	r.Use(rc.InvalidateOnWrite())

	hits := 0
	r.GET("/machines", rc.Cache(), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.GET("/missing", rc.Cache(), func(c *gin.Context) {
		hits++
		c.Status(http.StatusNotFound)
	})
	r.POST("/machines", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	first := serve(r, http.MethodGet, "/machines")
	second := serve(r, http.MethodGet, "/machines")
	assert.JSONEq(t, `{"hits":1}`, first.Body.String())
	assert.JSONEq(t, `{"hits":1}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))

	serve(r, http.MethodPost, "/bad")
	assert.JSONEq(t, `{"hits":1}`, serve(r, http.MethodGet, "/machines").Body.String())

	serve(r, http.MethodPost, "/machines")
	assert.JSONEq(t, `{"hits":2}`, serve(r, http.MethodGet, "/machines").Body.String())

	serve(r, http.MethodGet, "/missing")
	serve(r, http.MethodGet, "/missing")
	assert.Equal(t, 4, hits, "error responses are not cached")
}

func TestResponseCache_KeysOnPathAndQuery(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	r := gin.New()
	r.GET("/machines/:id", rc.Cache(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "limit": c.Query("limit")})
	})

	assert.JSONEq(t, `{"id":"1","limit":""}`, serve(r, http.MethodGet, "/machines/1").Body.String())
	assert.JSONEq(t, `{"id":"2","limit":""}`, serve(r, http.MethodGet, "/machines/2").Body.String())
	assert.JSONEq(t, `{"id":"1","limit":"5"}`, serve(r, http.MethodGet, "/machines/1?limit=5").Body.String())

	again := serve(r, http.MethodGet, "/machines/2")
	assert.Equal(t, "HIT", again.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"id":"2","limit":""}`, again.Body.String())
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/").Code)
}

func TestIPRateLimiter_ReusesLimiterPerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.1"))
	assert.NotSame(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.2"))
}
