package engine

import "testing"

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg != DefaultConfig() {
		t.Fatalf("withDefaults = %+v, want %+v", cfg, DefaultConfig())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigSingleWorkerHasNoReservedWorker(t *testing.T) {
	cfg := Config{Workers: 1}.withDefaults()
	if cfg.ReservedInteractive != 0 {
		t.Fatalf("ReservedInteractive = %d, want 0", cfg.ReservedInteractive)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfigNegativeReservedDisables(t *testing.T) {
	cfg := Config{Workers: 4, ReservedInteractive: -1}.withDefaults()
	if cfg.ReservedInteractive != 0 {
		t.Fatalf("ReservedInteractive = %d, want 0", cfg.ReservedInteractive)
	}
}

func TestConfigValidateRejectsAllReserved(t *testing.T) {
	cfg := Config{Workers: 2, ReservedInteractive: 2}.withDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when every worker is reserved")
	}
}
