package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestControllerStopSignal(t *testing.T) {
	dir := t.TempDir()
	c, err := NewController(dir)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if c.ShouldStop() {
		t.Fatal("stop set before any signal")
	}
	if err := c.SignalStop(); err != nil {
		t.Fatalf("SignalStop: %v", err)
	}
	if !c.ShouldStop() {
		t.Fatal("stop signal not observed")
	}
}

func TestControllerPauseSignal(t *testing.T) {
	dir := t.TempDir()
	c, err := NewController(dir)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.SignalPause(); err != nil {
		t.Fatalf("SignalPause: %v", err)
	}
	if !c.ShouldPause() {
		t.Fatal("pause signal not observed")
	}
	if c.ShouldStop() {
		t.Fatal("pause must not imply stop")
	}
}

func TestControllerClear(t *testing.T) {
	dir := t.TempDir()
	c, err := NewController(dir)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if err := c.SignalStop(); err != nil {
		t.Fatalf("SignalStop: %v", err)
	}
	if !c.ShouldStop() {
		t.Fatal("stop signal not observed")
	}

	c.Clear()
	if c.ShouldStop() || c.ShouldPause() {
		t.Fatal("Clear did not reset signals")
	}
	if _, err := os.Stat(filepath.Join(dir, "signals", "stop")); !os.IsNotExist(err) {
		t.Error("stop file still on disk after Clear")
	}
}

func TestControllerObservesPreexistingSignal(t *testing.T) {
	dir := t.TempDir()
	signals := filepath.Join(dir, "signals")
	if err := os.MkdirAll(signals, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(signals, "stop"), nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := NewController(dir)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	defer c.Close()

	if !c.ShouldStop() {
		t.Fatal("signal written before startup was missed")
	}
}
