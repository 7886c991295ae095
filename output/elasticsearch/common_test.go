package elasticsearch

import (
	"fmt"
	"strings"
	"time"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/gotils/promexporter/promreg"
)

// testSettings is an in-memory settings provider for tests
type testSettings struct {
	values    map[string]interface{}
	callbacks []func()
}

func newTestSettings(values map[string]interface{}) *testSettings {
	return &testSettings{values: values}
}

func (settings *testSettings) GetString(key string) string {
	if value, ok := settings.values[key]; ok {
		return fmt.Sprint(value)
	}
	return ""
}

func (settings *testSettings) GetInt(key string) int {
	if value, ok := settings.values[key].(int); ok {
		return value
	}
	return 0
}

func (settings *testSettings) GetBool(key string) bool {
	if value, ok := settings.values[key].(bool); ok {
		return value
	}
	return false
}

func (settings *testSettings) GetDuration(key string) time.Duration {
	if value, ok := settings.values[key].(time.Duration); ok {
		return value
	}
	return 0
}

func (settings *testSettings) OnChange(callback func()) {
	settings.callbacks = append(settings.callbacks, callback)
}

func (settings *testSettings) Set(key string, value interface{}) {
	settings.values[key] = value
	for _, callback := range settings.callbacks {
		callback()
	}
}

func newTestAllocator() *base.EventAllocator {
	return base.NewEventAllocator(base.ProcessInfo{Name: "testproc", ID: 1234, Title: "testproc --test"})
}

func newTestMetrics(prefix string) pipelineMetrics {
	return newPipelineMetrics(promreg.NewMetricFactory(prefix, nil, nil))
}

// makeBulkResponseBody builds a response with one item per given status, in request order
func makeBulkResponseBody(statuses ...int) []byte {
	items := make([]string, len(statuses))
	hasErrors := false
	for i, status := range statuses {
		switch {
		case status < 300:
			items[i] = fmt.Sprintf(`{"create":{"_index":"logs","status":%d,"result":"created"}}`, status)
		default:
			hasErrors = true
			items[i] = fmt.Sprintf(
				`{"create":{"_index":"logs","status":%d,"error":{"type":"some_exception","reason":"item %d failed"}}}`,
				status, i)
		}
	}
	return []byte(fmt.Sprintf(`{"took":7,"errors":%t,"items":[%s]}`, hasErrors, strings.Join(items, ",")))
}
