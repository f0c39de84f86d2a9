package riptide

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

func response(status int, contentType, body string) *http.Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// trackingBody records whether the dispatcher closed it.
type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func newTrackingBody(body string) *trackingBody {
	return &trackingBody{Reader: strings.NewReader(body)}
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// doerFunc adapts a function to HTTPDoer.
type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// recordingRoute counts executions and remembers the name it was given.
type recordingRoute struct {
	name  string
	calls *[]string
}

func (r recordingRoute) Execute(*http.Response, MessageReader) error {
	*r.calls = append(*r.calls, r.name)
	return nil
}

// captureLogger keeps every record in memory.
type captureLogger struct {
	records atomic.Pointer[[]logRecord]
}

type logRecord struct {
	level string
	msg   string
	kv    []interface{}
}

func (l *captureLogger) add(level, msg string, kv []interface{}) {
	for {
		old := l.records.Load()
		var next []logRecord
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, logRecord{level: level, msg: msg, kv: kv})
		if l.records.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (l *captureLogger) Debug(msg string, kv ...interface{}) { l.add("debug", msg, kv) }
func (l *captureLogger) Info(msg string, kv ...interface{})  { l.add("info", msg, kv) }
func (l *captureLogger) Warn(msg string, kv ...interface{})  { l.add("warn", msg, kv) }
func (l *captureLogger) Error(msg string, kv ...interface{}) { l.add("error", msg, kv) }

func (l *captureLogger) messages() []string {
	records := l.records.Load()
	if records == nil {
		return nil
	}
	out := make([]string, len(*records))
	for i, r := range *records {
		out[i] = r.level + ":" + r.msg
	}
	return out
}

func (l *captureLogger) find(msg string) (logRecord, bool) {
	records := l.records.Load()
	if records == nil {
		return logRecord{}, false
	}
	for _, r := range *records {
		if r.msg == msg {
			return r, true
		}
	}
	return logRecord{}, false
}

func (r logRecord) value(key string) interface{} {
	for i := 0; i+1 < len(r.kv); i += 2 {
		if r.kv[i] == key {
			return r.kv[i+1]
		}
	}
	return nil
}

// values returns key from every record logged as msg, in order.
func (l *captureLogger) values(msg, key string) []interface{} {
	records := l.records.Load()
	if records == nil {
		return nil
	}
	var out []interface{}
	for _, r := range *records {
		if r.msg == msg {
			out = append(out, r.value(key))
		}
	}
	return out
}
