package support

import (
	"testing"

	"github.com/hyunwoo-p/counseldesk/internal/ai"
)

func conf(v float64) *float64 { return &v }

func TestGate_RequiresApproval(t *testing.T) {
	g := NewGate(0.75)

	cases := []struct {
		name       string
		kind       ai.Kind
		confidence *float64
		want       bool
	}{
		{"reply below threshold", ai.KindReply, conf(0.6), true},
		{"reply at threshold", ai.KindReply, conf(0.75), false},
		{"reply above threshold", ai.KindReply, conf(0.9), false},
		{"reply unknown confidence", ai.KindReply, nil, true},
		{"summary low confidence", ai.KindSummary, conf(0.1), false},
		{"emotion unknown confidence", ai.KindEmotion, nil, false},
		{"intent low confidence", ai.KindIntent, conf(0.2), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.RequiresApproval(tc.kind, tc.confidence); got != tc.want {
				t.Fatalf("RequiresApproval(%s, %v) = %v, want %v", tc.kind, tc.confidence, got, tc.want)
			}
		})
	}
}

func TestNewGate_RejectsBadThreshold(t *testing.T) {
	for _, v := range []float64{0, -1, 1.5} {
		if got := NewGate(v).Threshold(); got != DefaultConfidenceThreshold {
			t.Fatalf("NewGate(%v).Threshold() = %v, want default", v, got)
		}
	}
}
