// moltcourt-arena/services/anchor_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordHashIsStable(t *testing.T) {
	payload := map[string]interface{}{
		"event":  "fight_result",
		"winner": "agent-a",
		"scoreA": 23,
		"scoreB": 22,
	}

	first := RecordHash(payload)
	second := RecordHash(payload)

	assert.Equal(t, first, second)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, first)
}

func TestRecordHashIgnoresExistingHashKey(t *testing.T) {
	payload := map[string]interface{}{"event": "trial_verdict", "trial": "t1"}
	want := RecordHash(payload)

	payload["hash"] = want
	assert.Equal(t, want, RecordHash(payload))
}

func TestRecordHashChangesWithPayload(t *testing.T) {
	a := RecordHash(map[string]interface{}{"winner": "agent-a"})
	b := RecordHash(map[string]interface{}{"winner": "agent-b"})
	assert.NotEqual(t, a, b)
}
