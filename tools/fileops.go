package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohanthewiz/serr"
)

// PlanDirFunc maps a root plan id to its working directory
type PlanDirFunc func(rootPlanID string) (string, error)

// FileReadTool reads files inside the plan's working directory
type FileReadTool struct {
	PlanDir PlanDirFunc
}

// GetDefinition returns the tool definition for the AI
func (t *FileReadTool) GetDefinition() Tool {
	return Tool{
		Name:        "file_read",
		Description: "Read the contents of a file inside the plan working directory",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path relative to the plan working directory",
				},
			},
			"required": []string{"path"},
		},
	}
}

// Execute reads the file and returns its contents with line numbers
func (t *FileReadTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	path, ok := GetString(input, "path")
	if !ok || path == "" {
		return "", serr.New("path is required")
	}

	fullPath, err := t.resolve(path, ctx)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", serr.New(fmt.Sprintf("File not found: %s", path))
		}
		return "", serr.Wrap(err, fmt.Sprintf("Failed to read file: %s", path))
	}

	lines := strings.Split(string(content), "\n")
	numberedLines := make([]string, len(lines))
	for i, line := range lines {
		numberedLines[i] = fmt.Sprintf("%d\t%s", i+1, line)
	}

	result := strings.Join(numberedLines, "\n")

	const maxLength = 30000
	if len(result) > maxLength {
		result = result[:maxLength] + "\n\n[Content truncated...]"
	}

	return result, nil
}

func (t *FileReadTool) resolve(path string, ctx CallContext) (string, error) {
	return resolvePlanPath(t.PlanDir, path, ctx)
}

// FileWriteTool writes files inside the plan's working directory
type FileWriteTool struct {
	PlanDir PlanDirFunc
}

// GetDefinition returns the tool definition for the AI
func (t *FileWriteTool) GetDefinition() Tool {
	return Tool{
		Name:        "file_write",
		Description: "Write content to a file inside the plan working directory, creating parent directories as needed",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path relative to the plan working directory",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The content to write",
				},
			},
			"required": []string{"path", "content"},
		},
	}
}

// Execute writes the content and reports bytes written
func (t *FileWriteTool) Execute(input map[string]interface{}, ctx CallContext) (string, error) {
	path, ok := GetString(input, "path")
	if !ok || path == "" {
		return "", serr.New("path is required")
	}
	content, _ := GetString(input, "content")

	fullPath, err := resolvePlanPath(t.PlanDir, path, ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", serr.Wrap(err, "failed to create parent directory")
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		return "", serr.Wrap(err, fmt.Sprintf("Failed to write file: %s", path))
	}

	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

// resolvePlanPath roots a relative path in the plan directory and rejects
// escapes above it
func resolvePlanPath(planDir PlanDirFunc, path string, ctx CallContext) (string, error) {
	if planDir == nil {
		return "", serr.New("plan directory resolver not configured")
	}

	base, err := planDir(ctx.RootPlanID)
	if err != nil {
		return "", serr.Wrap(err, "failed to resolve plan directory")
	}

	fullPath := filepath.Join(base, filepath.Clean("/"+path))
	if !strings.HasPrefix(fullPath, base) {
		return "", serr.New("path escapes the plan working directory", "path", path)
	}
	return fullPath, nil
}
