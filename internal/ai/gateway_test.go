package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type scriptedProvider struct {
	replies []string
	errs    []error
	calls   int
	last    []Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	_ = ctx
	p.last = append([]Message(nil), messages...)
	i := p.calls
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	var reply string
	if i < len(p.replies) {
		reply = p.replies[i]
	}
	return reply, err
}

func newTestGateway(p Provider) *Gateway {
	g := NewGateway(p, "google/gemini-2.5-flash", 5*time.Second, 1)
	g.retryDelay = time.Millisecond
	return g
}

func TestComplete_BuildsKindPrompts(t *testing.T) {
	transcript := []TranscriptMessage{
		{Speaker: "customer", Text: "환불 가능한가요?"},
		{Speaker: "agent", Text: "주문번호를 알려주세요."},
	}

	cases := []struct {
		kind       Kind
		systemWant string
		userWant   string
	}{
		{KindSummary, "요약하는 AI 어시스턴트", "다음 고객센터 대화를 요약해주세요"},
		{KindEmotion, "감정을 분석하는", "고객의 감정을 분석해주세요"},
		{KindIntent, "의도를 분류하는", "고객의 의도를 분류해주세요"},
		{KindReply, "상담사를 돕는", "적절한 응답을 제안해주세요"},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			prov := &scriptedProvider{replies: []string{"답변"}}
			g := newTestGateway(prov)

			if _, err := g.Complete(context.Background(), tc.kind, transcript); err != nil {
				t.Fatalf("complete: %v", err)
			}
			if len(prov.last) != 2 {
				t.Fatalf("expected system+user messages, got %d", len(prov.last))
			}
			if prov.last[0].Role != "system" || !strings.Contains(prov.last[0].Content, tc.systemWant) {
				t.Fatalf("system prompt missing %q: %q", tc.systemWant, prov.last[0].Content)
			}
			if prov.last[1].Role != "user" || !strings.Contains(prov.last[1].Content, tc.userWant) {
				t.Fatalf("user prompt missing %q: %q", tc.userWant, prov.last[1].Content)
			}
			if !strings.Contains(prov.last[1].Content, "고객: 환불 가능한가요?") {
				t.Fatalf("transcript not labeled by speaker: %q", prov.last[1].Content)
			}
			if !strings.Contains(prov.last[1].Content, "상담사: 주문번호를 알려주세요.") {
				t.Fatalf("agent turn not labeled: %q", prov.last[1].Content)
			}
		})
	}
}

func TestComplete_PreservesRawTextAndLatency(t *testing.T) {
	raw := "분석 결과입니다.\n```json\n{\"intent\": \"환불요청\", \"confidence\": 0.82}\n```"
	prov := &scriptedProvider{replies: []string{raw}}
	g := newTestGateway(prov)

	draft, err := g.Complete(context.Background(), KindIntent, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if draft.Text != raw {
		t.Fatalf("raw text was altered: %q", draft.Text)
	}
	if draft.ModelID != "google/gemini-2.5-flash" {
		t.Fatalf("unexpected model id %q", draft.ModelID)
	}
	if draft.LatencyMs < 0 {
		t.Fatalf("negative latency %d", draft.LatencyMs)
	}
	if draft.Confidence == nil || *draft.Confidence != 0.82 {
		t.Fatalf("expected confidence 0.82, got %v", draft.Confidence)
	}
}

func TestComplete_EmptyCompletion(t *testing.T) {
	prov := &scriptedProvider{replies: []string{"   ", "\n"}}
	g := newTestGateway(prov)

	_, err := g.Complete(context.Background(), KindReply, nil)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
	if prov.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", prov.calls)
	}
}

func TestComplete_TransportErrorRetriesThenSurfaces(t *testing.T) {
	boom := errors.New("connection refused")
	prov := &scriptedProvider{errs: []error{boom, boom}}
	g := newTestGateway(prov)

	_, err := g.Complete(context.Background(), KindReply, nil)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestComplete_RecoversOnRetry(t *testing.T) {
	prov := &scriptedProvider{
		errs:    []error{errors.New("timeout"), nil},
		replies: []string{"", "네, 가능합니다."},
	}
	g := newTestGateway(prov)

	draft, err := g.Complete(context.Background(), KindReply, nil)
	if err != nil {
		t.Fatalf("expected recovery on second attempt: %v", err)
	}
	if draft.Text != "네, 가능합니다." {
		t.Fatalf("unexpected draft text %q", draft.Text)
	}
	if draft.Confidence != nil {
		t.Fatalf("reply without payload should have unknown confidence, got %v", *draft.Confidence)
	}
}

func TestComplete_UnknownKind(t *testing.T) {
	g := newTestGateway(&scriptedProvider{})
	if _, err := g.Complete(context.Background(), Kind("sentiment"), nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestExtractConfidence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want *float64
	}{
		{"fenced json", "```json\n{\"confidence\": 0.9}\n```", f(0.9)},
		{"bare braces", "결과: {\"intent\": \"문의\", \"confidence\": 0.55, \"reason\": \"질문\"}", f(0.55)},
		{"intensity key", "{\"sentiment\": \"부정\", \"intensity\": 0.7}", f(0.7)},
		{"no payload", "그냥 자유 텍스트입니다", nil},
		{"malformed json", "{\"confidence\": oops}", nil},
		{"out of range", "{\"confidence\": 3.5}", nil},
		{"unbalanced braces", "시작 { 중간", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractConfidence(tc.in)
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("expected nil, got %v", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("expected %v, got nil", *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Fatalf("expected %v, got %v", *tc.want, *got)
			}
		})
	}
}

func f(v float64) *float64 { return &v }
