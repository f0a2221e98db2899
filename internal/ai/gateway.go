package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind selects which analysis the gateway runs over a conversation.
type Kind string

const (
	KindSummary Kind = "summary"
	KindEmotion Kind = "emotion"
	KindIntent  Kind = "intent"
	KindReply   Kind = "reply"
)

func KnownKind(k Kind) bool {
	switch k {
	case KindSummary, KindEmotion, KindIntent, KindReply:
		return true
	}
	return false
}

// TranscriptMessage is one turn of the bounded conversation window
// handed to the gateway.
type TranscriptMessage struct {
	Speaker string // customer | agent | ai
	Text    string
}

// Draft is the raw gateway result. Text is preserved unmodified;
// Confidence is nil when the model did not return a usable score.
type Draft struct {
	Text       string
	Confidence *float64
	ModelID    string
	LatencyMs  int64
}

// FallbackReply is shown by presentation layers when no draft could be
// generated. The pipeline itself never substitutes it for a failure.
const FallbackReply = "죄송합니다. 일시적인 오류로 응답을 생성할 수 없습니다. 잠시 후 다시 시도해 주시거나, 상담원 연결을 요청해 주세요."

// Gateway wraps the completion provider with per-kind prompt
// construction, a bounded deadline, bounded retries, and failure
// normalization into ErrUpstreamUnavailable / ErrEmptyCompletion.
type Gateway struct {
	provider   Provider
	model      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

func NewGateway(provider Provider, model string, timeout time.Duration, maxRetries int) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Gateway{
		provider:   provider,
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

func (g *Gateway) Model() string { return g.model }

// Complete renders the transcript, builds the kind-specific prompts and
// submits a single completion request per attempt. Transient failures
// are retried up to maxRetries times before surfacing.
func (g *Gateway) Complete(ctx context.Context, kind Kind, transcript []TranscriptMessage) (*Draft, error) {
	if !KnownKind(kind) {
		return nil, fmt.Errorf("ai: unknown analysis kind %q", kind)
	}

	systemPrompt, userPrompt := buildPrompts(kind, renderTranscript(transcript))
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
			case <-time.After(g.retryDelay):
			}
		}

		draft, err := g.completeOnce(ctx, messages)
		if err == nil {
			draft.Confidence = ExtractConfidence(draft.Text)
			return draft, nil
		}
		lastErr = err
		if !errors.Is(err, ErrUpstreamUnavailable) && !errors.Is(err, ErrEmptyCompletion) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (g *Gateway) completeOnce(ctx context.Context, messages []Message) (*Draft, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Chat(cctx, messages)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyCompletion
	}
	return &Draft{Text: text, ModelID: g.model, LatencyMs: latency}, nil
}

// renderTranscript labels each turn by speaker the way agents see it in
// the console: customers as 고객, everyone else as 상담사.
func renderTranscript(transcript []TranscriptMessage) string {
	lines := make([]string, 0, len(transcript))
	for _, m := range transcript {
		label := "상담사"
		if m.Speaker == "customer" {
			label = "고객"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, m.Text))
	}
	return strings.Join(lines, "\n")
}

func buildPrompts(kind Kind, transcript string) (system string, user string) {
	switch kind {
	case KindSummary:
		system = `당신은 고객센터 대화를 요약하는 AI 어시스턴트입니다.
대화의 핵심 내용을 3-4문장으로 간결하게 요약해주세요.
- 고객의 주요 문의사항
- 상담사의 대응 내용
- 현재 상황 및 다음 단계`
		user = fmt.Sprintf("다음 고객센터 대화를 요약해주세요:\n\n%s", transcript)

	case KindEmotion:
		system = `당신은 고객 감정을 분석하는 AI 어시스턴트입니다.
대화에서 고객의 감정 상태를 분석하여 JSON 형식으로 응답해주세요.
형식: {"sentiment": "긍정|중립|부정", "intensity": 0.0-1.0, "keywords": ["키워드1", "키워드2"]}`
		user = fmt.Sprintf("다음 대화에서 고객의 감정을 분석해주세요:\n\n%s", transcript)

	case KindIntent:
		system = `당신은 고객 의도를 분류하는 AI 어시스턴트입니다.
고객의 문의 의도를 다음 중 하나로 분류하고, JSON 형식으로 응답해주세요.
카테고리: 불만, 문의, 환불요청, 정보요청, 기술지원, 기타
형식: {"intent": "카테고리", "confidence": 0.0-1.0, "reason": "분류 근거"}`
		user = fmt.Sprintf("다음 대화에서 고객의 의도를 분류해주세요:\n\n%s", transcript)

	case KindReply:
		system = `당신은 고객센터 상담사를 돕는 AI 어시스턴트입니다.
현재 상황에 적합한 응답을 1-2문장으로 제안해주세요.
- 공손하고 전문적인 톤
- 구체적이고 실용적인 조언
- 고객의 감정을 고려한 응답`
		user = fmt.Sprintf("다음 대화 상황에서 상담사가 사용할 수 있는 적절한 응답을 제안해주세요:\n\n%s", transcript)
	}
	return system, user
}

// ExtractConfidence scans the first fenced or brace-delimited JSON block
// of a completion for a numeric confidence. Models embed these payloads
// in free text, so any parse failure simply means "unknown" (nil); the
// raw text is always preserved for storage regardless.
func ExtractConfidence(text string) *float64 {
	payload := firstStructuredBlock(text)
	if payload == "" {
		return nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil
	}
	for _, key := range []string{"confidence", "intensity"} {
		if v, ok := decoded[key]; ok {
			if f, ok := v.(float64); ok && f >= 0 && f <= 1 {
				c := f
				return &c
			}
		}
	}
	return nil
}

// firstStructuredBlock returns the contents of the first ``` fence, or
// failing that the first balanced {...} span.
func firstStructuredBlock(text string) string {
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		// tolerate a language tag on the fence line
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{}") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
