// Package workspace manages plan working directories, the external folder
// link for root plans, and uploaded-file synchronization.
package workspace

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

const externalLinkName = "linked_external"

// Manager owns the on-disk layout: one directory per root plan under the
// data dir, plus an uploads staging area keyed by upload key.
type Manager struct {
	dataDir        string
	externalFolder string
}

// NewManager creates a workspace manager. An empty dataDir falls back to
// ~/.local/share/taskflow.
func NewManager(dataDir, externalFolder string) (*Manager, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, serr.Wrap(err, "failed to get home directory")
		}
		dataDir = filepath.Join(homeDir, ".local", "share", "taskflow")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, serr.Wrap(err, "failed to create data directory")
	}
	return &Manager{dataDir: dataDir, externalFolder: externalFolder}, nil
}

// RootPlanDir returns (and creates) the working directory for a root plan
func (m *Manager) RootPlanDir(rootPlanID string) (string, error) {
	if rootPlanID == "" {
		return "", serr.New("rootPlanID is required")
	}
	dir := filepath.Join(m.dataDir, "plans", rootPlanID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", serr.Wrap(err, "failed to create plan directory", "root_plan_id", rootPlanID)
	}
	return dir, nil
}

// UploadDir returns (and creates) the staging directory for an upload key
func (m *Manager) UploadDir(uploadKey string) (string, error) {
	if uploadKey == "" {
		return "", serr.New("uploadKey is required")
	}
	dir := filepath.Join(m.dataDir, "uploads", uploadKey)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", serr.Wrap(err, "failed to create upload directory", "upload_key", uploadKey)
	}
	return dir, nil
}

// EnsureExternalFolderLink creates the scoped symbolic link from the plan
// directory to the configured external folder. No-op when no external
// folder is configured or the link already exists.
func (m *Manager) EnsureExternalFolderLink(rootPlanID string) error {
	if m.externalFolder == "" {
		return nil
	}

	planDir, err := m.RootPlanDir(rootPlanID)
	if err != nil {
		return err
	}

	linkPath := filepath.Join(planDir, externalLinkName)
	if _, err := os.Lstat(linkPath); err == nil {
		return nil
	}

	if err := os.Symlink(m.externalFolder, linkPath); err != nil {
		return serr.Wrap(err, "failed to create external folder link", "root_plan_id", rootPlanID)
	}
	logger.Debug("Created external folder link", "root_plan_id", rootPlanID, "target", m.externalFolder)
	return nil
}

// RemoveExternalFolderLink removes the scoped symbolic link when a root
// plan finishes
func (m *Manager) RemoveExternalFolderLink(rootPlanID string) error {
	planDir := filepath.Join(m.dataDir, "plans", rootPlanID)
	linkPath := filepath.Join(planDir, externalLinkName)

	if _, err := os.Lstat(linkPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return serr.Wrap(err, "failed to stat external folder link", "root_plan_id", rootPlanID)
	}

	if err := os.Remove(linkPath); err != nil {
		return serr.Wrap(err, "failed to remove external folder link", "root_plan_id", rootPlanID)
	}
	return nil
}

// SyncUploadedFiles copies every file staged under the upload key into the
// plan directory
func (m *Manager) SyncUploadedFiles(uploadKey, rootPlanID string) error {
	if uploadKey == "" || rootPlanID == "" {
		return nil
	}

	srcDir := filepath.Join(m.dataDir, "uploads", uploadKey)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("No uploads found for key", "upload_key", uploadKey)
			return nil
		}
		return serr.Wrap(err, "failed to read upload directory", "upload_key", uploadKey)
	}

	planDir, err := m.RootPlanDir(rootPlanID)
	if err != nil {
		return err
	}

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(srcDir, entry.Name()), filepath.Join(planDir, entry.Name())); err != nil {
			return serr.Wrap(err, "failed to copy uploaded file", "file", entry.Name())
		}
		copied++
	}
	if copied > 0 {
		logger.Info("Synchronized uploaded files into plan directory",
			"upload_key", uploadKey, "root_plan_id", rootPlanID, "files", copied)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
