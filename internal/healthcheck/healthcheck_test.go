package healthcheck

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedSource int64

func (f fixedSource) LastRefreshTimestamp() int64 { return int64(f) }

func TestNeverIsUnhealthy(t *testing.T) {
	h := Handler(fixedSource(0), func() time.Time { return time.Unix(1000, 0) })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/openaperture_router_status_check", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestFreshIsHealthy(t *testing.T) {
	h := Handler(fixedSource(1000), func() time.Time { return time.Unix(1100, 0) })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/openaperture_router_status_check", nil))
	assert.Equal(t, 200, rec.Code)
}

func TestStaleIsUnhealthy(t *testing.T) {
	h := Handler(fixedSource(1000), func() time.Time { return time.Unix(1000+601, 0) })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/openaperture_router_status_check", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestExactBoundaryIsHealthy(t *testing.T) {
	h := Handler(fixedSource(1000), func() time.Time { return time.Unix(1000+600, 0) })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/openaperture_router_status_check", nil))
	assert.Equal(t, 200, rec.Code)
}
