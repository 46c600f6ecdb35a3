package certificate

import (
	"strings"
	"testing"
)

func TestIssue(t *testing.T) {
	cert, err := Issue("Nguyễn Văn An", "An toàn sinh học trong chăn nuôi", 2)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if !strings.HasPrefix(cert.ID, "CERT-") {
		t.Errorf("ID = %q, want CERT- prefix", cert.ID)
	}
	if cert.CourseName != "An toàn sinh học trong chăn nuôi (Level 2)" {
		t.Errorf("CourseName = %q", cert.CourseName)
	}
	if cert.StudentName != "Nguyễn Văn An" {
		t.Errorf("StudentName = %q", cert.StudentName)
	}
	if cert.Date.IsZero() {
		t.Error("Date is zero")
	}
}

func TestIssue_VerificationCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		cert, err := Issue("Trần Thị Bình", "Dinh dưỡng vật nuôi", 1)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		code := cert.VerificationCode
		if len(code) != codeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), codeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("verification codes never vary")
	}
}

func TestIssue_Validation(t *testing.T) {
	if _, err := Issue("", "Dinh dưỡng vật nuôi", 1); err == nil {
		t.Error("Issue() with empty student name, want error")
	}
	if _, err := Issue("Nguyễn Văn An", "", 1); err == nil {
		t.Error("Issue() with empty course title, want error")
	}
}
