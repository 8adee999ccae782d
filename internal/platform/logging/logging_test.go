package logging

import "testing"

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	log, err := New("chatty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Core().Enabled(-1) {
		t.Fatal("debug should be disabled for the info fallback")
	}
	if !log.Core().Enabled(0) {
		t.Fatal("info should be enabled")
	}
}

func TestNewService_DebugLevel(t *testing.T) {
	log, err := NewService(" DEBUG ", "proxy-fn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(-1) {
		t.Fatal("debug should be enabled")
	}
}
