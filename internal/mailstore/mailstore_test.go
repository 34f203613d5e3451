package mailstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID("<abc@example.com>"))
	assert.Equal(t, "abc@example.com", NormalizeMessageID("  <abc@example.com> "))
	assert.Equal(t, "abc@example.com", NormalizeMessageID("abc@example.com"))
	assert.Equal(t, "", NormalizeMessageID(""))
}

func TestCriteriaMatchesEnvelope(t *testing.T) {
	env := Envelope{
		MessageID: "inv-1@example.com",
		Subject:   "Quarterly Invoice",
		From:      []string{"Billing <billing@example.com>"},
		To:        []string{"ops@example.com", "finance@example.com"},
		Date:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name string
		crit Criteria
		want bool
	}{
		{"subject substring", Criteria{Kind: KindSubject, Value: "invoice"}, true},
		{"subject miss", Criteria{Kind: KindSubject, Value: "receipt"}, false},
		{"from substring", Criteria{Kind: KindFrom, Value: "billing@"}, true},
		{"to any recipient", Criteria{Kind: KindTo, Value: "finance"}, true},
		{"to miss", Criteria{Kind: KindTo, Value: "legal"}, false},
		{"message id exact", Criteria{Kind: KindMessageID, Value: "<inv-1@example.com>"}, true},
		{"message id miss", Criteria{Kind: KindMessageID, Value: "inv-2@example.com"}, false},
		{"all", Criteria{Kind: KindAll}, true},
		{"body defers to caller", Criteria{Kind: KindBody, Value: "anything"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.crit.MatchesEnvelope(env))
		})
	}
}

func TestCriteriaTimeWindow(t *testing.T) {
	sent := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	env := Envelope{MessageID: "a@b", Date: sent}

	// Since is inclusive.
	assert.True(t, Criteria{Kind: KindAll, Since: sent}.MatchesEnvelope(env))
	assert.False(t, Criteria{Kind: KindAll, Since: sent.Add(time.Second)}.MatchesEnvelope(env))

	// Before is exclusive.
	assert.False(t, Criteria{Kind: KindAll, Before: sent}.MatchesEnvelope(env))
	assert.True(t, Criteria{Kind: KindAll, Before: sent.Add(time.Second)}.MatchesEnvelope(env))
}

func TestIsInterruption(t *testing.T) {
	err := Interruption(assert.AnError)
	assert.True(t, IsInterruption(err))
	assert.False(t, IsInterruption(assert.AnError))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, Interruption(nil))
}
