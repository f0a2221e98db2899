package dlp

import (
	"strings"
	"testing"
)

func TestRedact_MasksAllCategories(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "resident registration number",
			in:   "제 주민번호는 900101-1234567 입니다",
			want: "제 주민번호는 ######-####### 입니다",
		},
		{
			name: "phone number",
			in:   "연락처: 010-1234-5678",
			want: "연락처: ###-####-####",
		},
		{
			name: "short middle phone number",
			in:   "call 011-123-4567 please",
			want: "call ###-####-#### please",
		},
		{
			name: "email",
			in:   "customer@example.com 으로 보내주세요",
			want: "#####@#####.### 으로 보내주세요",
		},
		{
			name: "card number",
			in:   "카드번호 1234-5678-9012-3456 결제",
			want: "카드번호 ####-####-####-#### 결제",
		},
		{
			name: "multiple categories in one text",
			in:   "email a.b@c.kr phone 010-111-2222",
			want: "email #####@#####.### phone ###-####-####",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Redact(tc.in)
			if got != tc.want {
				t.Fatalf("Redact(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRedact_DestroysOriginalDigits(t *testing.T) {
	in := "900101-1234567 / 010-9876-5432 / 1111-2222-3333-4444"
	got := Redact(in)

	for _, span := range []string{"1234567", "9876", "5432", "2222", "3333", "4444"} {
		if strings.Contains(got, span) {
			t.Fatalf("redacted output still contains %q: %q", span, got)
		}
	}
}

func TestRedact_Idempotent(t *testing.T) {
	inputs := []string{
		"주민번호 900101-1234567, 이메일 kim@test.co.kr",
		"카드 1234-5678-9012-3456 전화 010-1234-5678",
		"no pii at all",
		"",
	}
	for _, in := range inputs {
		once := Redact(in)
		twice := Redact(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: first=%q second=%q", in, once, twice)
		}
	}
}

func TestRedact_LeavesCleanTextAlone(t *testing.T) {
	in := "환불 가능한가요? 주문번호는 A-12345 입니다."
	if got := Redact(in); got != in {
		t.Fatalf("clean text was altered: %q -> %q", in, got)
	}
}

func TestWasRedacted(t *testing.T) {
	if WasRedacted("hello world") {
		t.Fatal("clean text flagged as redacted")
	}
	if !WasRedacted("mail me at a@b.com") {
		t.Fatal("email not flagged as redacted")
	}
}
