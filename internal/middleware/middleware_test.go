package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResponseMetaCollectsEntries(t *testing.T) {
	var captured map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/x", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, MetaWarnings, []string{"weights sum to 90"})
		captured = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, captured[MetaCacheHit])
	assert.Equal(t, []string{"weights sum to 90"}, captured[MetaWarnings])
	assert.Contains(t, captured, MetaProcessingTime)
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	SetCacheHit(c, false)

	meta := ExtractMeta(c)
	assert.Equal(t, false, meta[MetaCacheHit])
	assert.NotContains(t, meta, MetaProcessingTime)
	assert.Nil(t, ExtractMeta(nil))
}

func TestExtractMetaReturnsCopy(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	SetMeta(c, "k", 1)
	meta := ExtractMeta(c)
	meta["k"] = 2

	assert.Equal(t, 1, ExtractMeta(c)["k"])
}

func TestMetricsRecordsRouteTemplates(t *testing.T) {
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/students/:id/performance", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/students/s1/performance", "/students/s2/performance", "/metrics", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, uint64(3), metrics.Snapshot().RequestsTotal)
}

func TestMetricsNilServicePassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
