package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
)

type capturingLogger struct {
	msg    string
	fields []interface{}
}

func (c *capturingLogger) Debug(msg string, fields ...interface{}) {}
func (c *capturingLogger) Info(msg string, fields ...interface{}) {
	c.msg = msg
	c.fields = fields
}
func (c *capturingLogger) Warn(msg string, fields ...interface{})  {}
func (c *capturingLogger) Error(msg string, fields ...interface{}) {}
func (c *capturingLogger) Fatal(msg string, fields ...interface{}) {}
func (c *capturingLogger) WithField(key string, value interface{}) core.ILogger {
	return c
}
func (c *capturingLogger) WithFields(fields map[string]interface{}) core.ILogger {
	return c
}

func fieldValue(fields []interface{}, key string) interface{} {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == key {
			return fields[i+1]
		}
	}
	return nil
}

func TestLogger_DecisionStartEndCarryTheSameDecisionID(t *testing.T) {
	cap := &capturingLogger{}
	l := New(cap)

	l.DecisionStart("decision-1", "BTCUSDT")
	assert.Equal(t, "DECISION_START", cap.msg)
	assert.Equal(t, "decision-1", fieldValue(cap.fields, "decision_id"))

	l.DecisionEnd("decision-1", "BTCUSDT", "BUY", "drop_trigger", []string{"spread"})
	assert.Equal(t, "DECISION_END", cap.msg)
	assert.Equal(t, "decision-1", fieldValue(cap.fields, "decision_id"))
	assert.Equal(t, []string{"spread"}, fieldValue(cap.fields, "failed_guards"))
}

func TestLogger_HeartbeatCarriesCycleAndCounts(t *testing.T) {
	cap := &capturingLogger{}
	l := New(cap)

	l.Heartbeat(5, 2, 10)
	assert.Equal(t, "HEARTBEAT", cap.msg)
	assert.Equal(t, int64(5), fieldValue(cap.fields, "cycle"))
	assert.Equal(t, 2, fieldValue(cap.fields, "positions"))
}

func TestLogger_ExitFilledIncludesReason(t *testing.T) {
	cap := &capturingLogger{}
	l := New(cap)

	l.ExitFilled("BTCUSDT", "100.5", "0.5", "HARD_SL")
	assert.Equal(t, "HARD_SL", fieldValue(cap.fields, "reason"))
}
