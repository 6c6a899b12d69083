package logging

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const dateFormat = "02/Jan/2006:15:04:05 -0700"

// accessLogFormat is a combined-log-like line with the request duration,
// followed by the entry's message (total time and in-router overhead):
// host - - [date] "method uri proto" status size "authority" duration_ms message
const accessLogFormat = `%s - - [%s] "%s %s %s" %d %d %q %.3f %s` + "\n"

type accessLogFormatter struct{}

func (f *accessLogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	get := func(k string) interface{} { return e.Data[k] }
	return []byte(fmt.Sprintf(accessLogFormat,
		get("host"), e.Time.Format(dateFormat), get("method"), get("uri"), get("proto"),
		get("status"), get("size"), get("authority"), get("duration_ms"), e.Message)), nil
}

// Entry is one completed request's worth of access-log data.
type Entry struct {
	Request      *http.Request
	Authority    string
	StatusCode   int
	ResponseSize int64
	Duration     time.Duration
	BackendUS    int64
}

func stripPort(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// LogAccess writes one access-log line for a completed request, carrying
// the total time and the in-router overhead (total minus backend time).
func LogAccess(e Entry) {
	totalUS := e.Duration.Microseconds()
	overheadUS := totalUS - e.BackendUS

	accessLog.WithFields(logrus.Fields{
		"host":      stripPort(e.Request.RemoteAddr),
		"method":    e.Request.Method,
		"uri":       e.Request.URL.RequestURI(),
		"proto":     e.Request.Proto,
		"status":    e.StatusCode,
		"size":      e.ResponseSize,
		"authority": e.Authority,
	}).WithFields(logrus.Fields{
		"duration_ms": float64(totalUS) / 1000.0,
	}).Infof("total=%.3fms overhead=%.3fms", float64(totalUS)/1000.0, float64(overheadUS)/1000.0)
}
