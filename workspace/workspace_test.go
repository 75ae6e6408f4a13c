package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

// TestRootPlanDirCreates verifies the plan directory is created on demand
func TestRootPlanDirCreates(t *testing.T) {
	m, err := NewManager(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}

	dir, err := m.RootPlanDir("plan-abc")
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("plan directory not created: %v", err)
	}

	if _, err := m.RootPlanDir(""); err == nil {
		t.Error("empty plan id must be rejected")
	}
}

// TestExternalFolderLinkLifecycle verifies the symlink is created for root
// plans and removed on cleanup
func TestExternalFolderLinkLifecycle(t *testing.T) {
	external := t.TempDir()
	m, err := NewManager(t.TempDir(), external)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.EnsureExternalFolderLink("plan-1"); err != nil {
		t.Fatal(err)
	}

	planDir, _ := m.RootPlanDir("plan-1")
	linkPath := filepath.Join(planDir, "linked_external")
	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatalf("link not created: %v", err)
	}
	if target != external {
		t.Errorf("link points to %s, want %s", target, external)
	}

	// Creating again is a no-op
	if err := m.EnsureExternalFolderLink("plan-1"); err != nil {
		t.Errorf("repeat link creation failed: %v", err)
	}

	if err := m.RemoveExternalFolderLink("plan-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(linkPath); !os.IsNotExist(err) {
		t.Error("link not removed")
	}

	// Removing a missing link is fine
	if err := m.RemoveExternalFolderLink("plan-1"); err != nil {
		t.Errorf("second removal errored: %v", err)
	}
}

// TestSyncUploadedFiles verifies staged uploads land in the plan directory
func TestSyncUploadedFiles(t *testing.T) {
	m, err := NewManager(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}

	uploadDir, err := m.UploadDir("upload-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(uploadDir, "input.txt"), []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.SyncUploadedFiles("upload-1", "plan-1"); err != nil {
		t.Fatal(err)
	}

	planDir, _ := m.RootPlanDir("plan-1")
	content, err := os.ReadFile(filepath.Join(planDir, "input.txt"))
	if err != nil {
		t.Fatalf("uploaded file not synced: %v", err)
	}
	if string(content) != "data" {
		t.Errorf("unexpected content: %s", content)
	}

	// Unknown upload keys are a silent no-op
	if err := m.SyncUploadedFiles("missing-key", "plan-1"); err != nil {
		t.Errorf("missing upload key should not error: %v", err)
	}
}
