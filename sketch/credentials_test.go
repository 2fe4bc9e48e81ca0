package sketch

import (
	"context"
	"strings"
	"testing"
)

func TestNewAPIKeyManager(t *testing.T) {
	if _, err := NewAPIKeyManager(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := NewAPIKeyManager("   "); err == nil {
		t.Error("expected error for blank key")
	}

	m, err := NewAPIKeyManager(" AAPK-1234567890 ")
	if err != nil {
		t.Fatalf("NewAPIKeyManager() error: %v", err)
	}
	token, err := m.Token(context.Background())
	if err != nil || token != "AAPK-1234567890" {
		t.Errorf("Token() = %q, %v", token, err)
	}
}

func TestAPIKeyManager_StringRedacts(t *testing.T) {
	m, _ := NewAPIKeyManager("AAPK-1234567890")
	s := m.String()
	if strings.Contains(s, "AAPK-123456") {
		t.Errorf("String() leaks the key: %s", s)
	}
	if !strings.HasSuffix(s, "7890)") {
		t.Errorf("String() = %s, want last four characters", s)
	}

	short, _ := NewAPIKeyManager("abc")
	if strings.Contains(short.String(), "abc") {
		t.Errorf("String() leaks a short key: %s", short.String())
	}
}
