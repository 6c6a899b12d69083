package acceptpool

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWrapAdmitsWithinLimit(t *testing.T) {
	p := New(2, 2, time.Second)
	defer p.Close()

	var served atomic.Int32
	h := p.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 4, served.Load())
}

func TestWrapRejectsWhenSaturated(t *testing.T) {
	p := New(1, 1, 50*time.Millisecond)
	defer p.Close()

	block := make(chan struct{})
	h := p.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))

	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	}()
	time.Sleep(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(block)
}
