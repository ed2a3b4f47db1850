package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("RECOGNITION_THRESHOLD")
	os.Unsetenv("EMBEDDING_DIM")
	os.Unsetenv("LATE_ARRIVAL_MINUTES")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.6 {
		t.Errorf("expected default threshold 0.6, got %v", cfg.Recognition.Threshold)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected default embedding dim 512, got %v", cfg.Embedding.Dim)
	}
	if cfg.Attendance.LateArrivalMinutes != 15 {
		t.Errorf("expected default late arrival 15, got %v", cfg.Attendance.LateArrivalMinutes)
	}
	if cfg.Attendance.DuplicateWindowMinutes != 5 {
		t.Errorf("expected default duplicate window 5, got %v", cfg.Attendance.DuplicateWindowMinutes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECOGNITION_THRESHOLD", "0.75")
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.75 {
		t.Errorf("expected threshold 0.75, got %v", cfg.Recognition.Threshold)
	}
	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected embedding dim 128, got %v", cfg.Embedding.Dim)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected max open conns 10, got %v", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("RECOGNITION_THRESHOLD", "1.5") // out of range
	t.Setenv("EMBEDDING_DIM", "not-a-number")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.6 {
		t.Errorf("expected fallback threshold 0.6, got %v", cfg.Recognition.Threshold)
	}
	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected fallback dim 512, got %v", cfg.Embedding.Dim)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}

	cfg.Recognition.Threshold = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero threshold")
	}
}
