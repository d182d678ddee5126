package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Liên hệ tôi qua anh.tran@example.com hoặc 0912 345 678, thẻ 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIIInternationalPhone(t *testing.T) {
	out, changed := RedactPII("gọi +84 912 345 678 nhé")
	if !changed || !strings.Contains(out, "[REDACTED_PHONE]") {
		t.Fatalf("international prefix not redacted: %q", out)
	}
}

func TestRedactPIIKeepsLoanAmounts(t *testing.T) {
	input := "tôi muốn vay 500000000 đồng trong 5 năm"
	out, changed := RedactPII(input)
	if changed {
		t.Fatalf("amount was redacted: %q", out)
	}
	if out != input {
		t.Fatalf("output = %q, want unchanged", out)
	}
}
