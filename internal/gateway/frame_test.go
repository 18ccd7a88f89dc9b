package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KnownOps(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name      string
		frame     string
		wantEvent string
		wantTS    int64
		hasTS     bool
	}{
		{"ready", `{"op":3,"d":{"sessionId":"abc"}}`, EventReady, 0, false},
		{"vote", `{"op":10,"d":{"userId":"1","entityId":"2"},"ts":1700000000000}`, EventVote, 1700000000000, true},
		{"test", `{"op":11,"d":{"userId":"1","entityId":"2"},"ts":5}`, EventTest, 5, true},
		{"reminder", `{"op":12,"d":{"userId":"1"},"ts":6}`, EventReminder, 6, true},
		{"unknown", `{"op":42,"d":{"anything":true}}`, EventUnknownOp, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.Classify([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.wantEvent, ev.EventName())

			ts, ok := ev.marker()
			assert.Equal(t, tt.hasTS, ok)
			assert.Equal(t, tt.wantTS, ts)
		})
	}
}

func TestClassify_Payloads(t *testing.T) {
	c := NewClassifier()

	ev, err := c.Classify([]byte(`{"op":10,"d":{"userId":"u","entityId":"e","isWeekend":true,"query":"?a=1"},"ts":9}`))
	require.NoError(t, err)
	vote, ok := ev.(Vote)
	require.True(t, ok)
	assert.Equal(t, "u", vote.UserID)
	assert.Equal(t, "e", vote.EntityID)
	assert.True(t, vote.IsWeekend)
	assert.Equal(t, "?a=1", vote.Query)
	assert.Equal(t, int64(9), vote.Timestamp)
	assert.True(t, vote.HasMarker())
	assert.JSONEq(t, `{"userId":"u","entityId":"e","isWeekend":true,"query":"?a=1"}`, string(vote.Raw))

	ev, err = c.Classify([]byte(`{"op":99,"d":{"x":1},"ts":3}`))
	require.NoError(t, err)
	unknown, ok := ev.(UnknownOp)
	require.True(t, ok)
	assert.Equal(t, 99, unknown.Op)
	assert.Equal(t, json.RawMessage(`{"x":1}`), unknown.Data)
	assert.Equal(t, int64(3), unknown.Timestamp)
}

func TestClassify_Malformed(t *testing.T) {
	c := NewClassifier()

	frames := map[string]string{
		"not json":          `hello`,
		"array":             `[1,2]`,
		"null":              `null`,
		"missing op":        `{"d":{}}`,
		"missing d":         `{"op":10}`,
		"d not object":      `{"op":10,"d":[1]}`,
		"d string":          `{"op":42,"d":"text"}`,
		"op string":         `{"op":"10","d":{}}`,
		"op fractional":     `{"op":10.5,"d":{}}`,
		"negative ts":       `{"op":10,"d":{"userId":"1","entityId":"2"},"ts":-1}`,
		"vote without user": `{"op":10,"d":{"entityId":"2"}}`,
		"vote wrong type":   `{"op":10,"d":{"userId":1,"entityId":"2"}}`,
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			ev, err := c.Classify([]byte(frame))
			require.Error(t, err)
			assert.Nil(t, ev)

			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, frame, string(perr.Frame))
		})
	}
}
