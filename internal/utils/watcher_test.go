package utils

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")

	manager := NewConfigManager(path, testLogger())
	if err := manager.Apply(validConfig()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	reloaded := make(chan *EngineConfig, 1)
	watcher, err := NewConfigWatcher(manager, func(config *EngineConfig) {
		select {
		case reloaded <- config:
		default:
		}
	}, testLogger())
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	// Give the watcher a moment to start before touching the file.
	time.Sleep(200 * time.Millisecond)

	updated := validConfig()
	updated.Rules[0].Threshold = 9
	if err := updated.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := updated.SaveConfig(path); err != nil {
		t.Fatal(err)
	}

	select {
	case config := <-reloaded:
		if config.Rules[0].Threshold != 9 {
			t.Errorf("reloaded threshold = %d, want 9", config.Rules[0].Threshold)
		}
		if manager.Current().Rules[0].Threshold != 9 {
			t.Error("manager snapshot not swapped on reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after config write")
	}
}

func TestConfigWatcherKeepsOldConfigOnBadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")

	manager := NewConfigManager(path, testLogger())
	if err := manager.Apply(validConfig()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	watcher, err := NewConfigWatcher(manager, nil, testLogger())
	if err != nil {
		t.Fatalf("NewConfigWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	time.Sleep(200 * time.Millisecond)

	broken := validConfig()
	broken.Rules[0].Threshold = -1
	if err := broken.SaveConfig(path); err != nil {
		t.Fatal(err)
	}

	// The reload fails validation; the active snapshot must survive.
	time.Sleep(500 * time.Millisecond)
	if got := manager.Current().Rules[0].Threshold; got != 5 {
		t.Errorf("snapshot threshold = %d, want the previous 5", got)
	}
}
