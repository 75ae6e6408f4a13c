package providers

import (
	"context"
	"testing"
	"time"

	"taskflow/models"
)

// fakeModelRegistry serves two fixed model configs
type fakeModelRegistry struct{}

func (fakeModelRegistry) FindDefault() (models.Config, error) {
	return models.Config{Name: "default-model", IsDefault: true}, nil
}

func (fakeModelRegistry) FindByName(name string) (models.Config, error) {
	return models.Config{Name: name}, nil
}

// TestClientForCaches verifies one client is built per model name
func TestClientForCaches(t *testing.T) {
	built := 0
	svc := NewService(fakeModelRegistry{}, func(cfg models.Config) ChatClient {
		built++
		return &scriptedClient{turns: [][]StreamEvent{textEvents("ok")}}
	})

	if _, _, err := svc.ClientFor("m1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.ClientFor("m1"); err != nil {
		t.Fatal(err)
	}
	if built != 1 {
		t.Errorf("expected 1 client built, got %d", built)
	}

	if _, cfg, err := svc.ClientFor(""); err != nil || cfg.Name != "default-model" {
		t.Errorf("default resolution failed: cfg=%+v err=%v", cfg, err)
	}
}

// TestModelChangePurgesCache verifies a change event forces a rebuild
func TestModelChangePurgesCache(t *testing.T) {
	built := 0
	svc := NewService(fakeModelRegistry{}, func(cfg models.Config) ChatClient {
		built++
		return &scriptedClient{turns: [][]StreamEvent{textEvents("ok")}}
	})

	notifier := models.NewNotifier()
	svc.WatchModelChanges(notifier.Subscribe())

	if _, _, err := svc.ClientFor("m1"); err != nil {
		t.Fatal(err)
	}

	notifier.Publish(models.Config{Name: "m1"})

	// The watcher runs on its own goroutine; give it a moment
	deadline := time.Now().Add(time.Second)
	for {
		if _, _, err := svc.ClientFor("m1"); err != nil {
			t.Fatal(err)
		}
		if built >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache was not purged after model change")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestChatReturnsMergedText verifies the plain chat helper
func TestChatReturnsMergedText(t *testing.T) {
	svc := NewService(fakeModelRegistry{}, func(cfg models.Config) ChatClient {
		return &scriptedClient{turns: [][]StreamEvent{textEvents("a summary")}}
	})

	text, err := svc.Chat(context.Background(), "", "system", "user")
	if err != nil {
		t.Fatal(err)
	}
	if text != "a summary" {
		t.Errorf("expected merged text, got %q", text)
	}
}
