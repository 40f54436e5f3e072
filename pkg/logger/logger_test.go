package logger

import "testing"

func TestLogUsableBeforeInit(t *testing.T) {
	if Log == nil {
		t.Fatal("Log must never be nil")
	}

	// background goroutines log through the singleton before and after
	// InitLogger runs; neither call may panic
	Log.Warn("warn before init")
	Log.Error("error before init")
}
