package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/drover-ai/drover/pkg/models"
)

// Executor runs the local (filesystem and shell) tools against a
// working directory. It is used directly in single-machine mode and by
// the channel client when tool calls arrive from a remote session.
type Executor struct {
	workDir string
}

// NewExecutor creates an executor rooted at the given working directory.
func NewExecutor(workDir string) *Executor {
	return &Executor{workDir: workDir}
}

// Execute runs one tool call and always returns a result; failures are
// reported through the result rather than an error so the caller can
// feed them back to the model.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	var res models.ToolResult
	switch call.Name {
	case "Read":
		res = e.execRead(call.Input)
	case "Write":
		res = e.execWrite(call.Input)
	case "Edit":
		res = e.execEdit(call.Input)
	case "Bash":
		res = e.execBash(ctx, call.Input)
	case "Glob":
		res = e.execGlob(call.Input)
	case "Grep":
		res = e.execGrep(ctx, call.Input)
	case "ListDir":
		res = e.execListDir(call.Input)
	default:
		res = models.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}
	res.CallID = call.ID
	return res
}

func failure(format string, args ...interface{}) models.ToolResult {
	return models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

func success(output string) models.ToolResult {
	return models.ToolResult{Success: true, Output: output}
}

func (e *Executor) execRead(input json.RawMessage) models.ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	path := e.resolvePath(params.FilePath)
	content, err := os.ReadFile(path)
	if err != nil {
		return failure("failed to read file: %v", err)
	}

	lines := strings.Split(string(content), "\n")

	start := 0
	if params.Offset > 0 {
		start = params.Offset - 1 // Convert to 0-indexed
		if start >= len(lines) {
			return failure("offset beyond end of file")
		}
	}

	end := len(lines)
	if params.Limit > 0 {
		end = min(start+params.Limit, len(lines))
	}

	// Format with line numbers (cat -n style)
	var result strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&result, "%6d\t%s\n", i+1, lines[i])
	}

	return success(result.String())
}

func (e *Executor) execWrite(input json.RawMessage) models.ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	path := e.resolvePath(params.FilePath)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure("failed to create directory: %v", err)
	}

	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return failure("failed to write file: %v", err)
	}

	return success(fmt.Sprintf("Successfully wrote %d bytes to %s", len(params.Content), params.FilePath))
}

func (e *Executor) execEdit(input json.RawMessage) models.ToolResult {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	path := e.resolvePath(params.FilePath)
	content, err := os.ReadFile(path)
	if err != nil {
		return failure("failed to read file: %v", err)
	}

	contentStr := string(content)

	count := strings.Count(contentStr, params.OldString)
	if count == 0 {
		return failure("old_string not found in file")
	}

	if !params.ReplaceAll && count > 1 {
		return failure("old_string found %d times; must be unique or use replace_all=true", count)
	}

	var newContent string
	if params.ReplaceAll {
		newContent = strings.ReplaceAll(contentStr, params.OldString, params.NewString)
	} else {
		newContent = strings.Replace(contentStr, params.OldString, params.NewString, 1)
	}

	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return failure("failed to write file: %v", err)
	}

	if params.ReplaceAll {
		return success(fmt.Sprintf("Replaced %d occurrences", count))
	}
	return success("Edit successful")
}

func (e *Executor) execBash(ctx context.Context, input json.RawMessage) models.ToolResult {
	var params struct {
		Command     string `json:"command"`
		Timeout     int    `json:"timeout"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	timeout := 120 * time.Second
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", params.Command)
	cmd.Dir = e.workDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return failure("command timed out after %v:\n%s", timeout, string(output))
		}
		return failure("%s\nerror: %v", string(output), err)
	}

	return success(truncateOutput(string(output)))
}

func (e *Executor) execGlob(input json.RawMessage) models.ToolResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	searchPath := e.workDir
	if params.Path != "" {
		searchPath = e.resolvePath(params.Path)
	}

	var matches []string
	err := filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if d.IsDir() {
			// Skip hidden directories
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}
			return nil
		}

		matched, _ := filepath.Match(filepath.Base(params.Pattern), d.Name())
		if matched {
			relPath, _ := filepath.Rel(searchPath, path)
			matches = append(matches, relPath)
		}
		return nil
	})

	if err != nil {
		return failure("glob error: %v", err)
	}

	if len(matches) == 0 {
		return success("No files matched the pattern")
	}

	return success(strings.Join(matches, "\n"))
}

func (e *Executor) execGrep(ctx context.Context, input json.RawMessage) models.ToolResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Glob    string `json:"glob"`
		Context int    `json:"context"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	args := []string{"--color=never", "-n"}

	if params.Context > 0 {
		args = append(args, "-C", fmt.Sprintf("%d", params.Context))
	}

	if params.Glob != "" {
		args = append(args, "--glob", params.Glob)
	}

	args = append(args, params.Pattern)

	searchPath := e.workDir
	if params.Path != "" {
		searchPath = e.resolvePath(params.Path)
	}
	args = append(args, searchPath)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", args...)
	output, _ := cmd.CombinedOutput() // rg returns non-zero on no match

	result := string(output)
	if len(result) == 0 {
		return success("No matches found")
	}

	return success(truncateOutput(result))
}

func (e *Executor) execListDir(input json.RawMessage) models.ToolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return failure("invalid parameters: %v", err)
	}

	path := e.resolvePath(params.Path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return failure("failed to read directory: %v", err)
	}

	var result strings.Builder
	for _, entry := range entries {
		info, _ := entry.Info()
		if info != nil {
			if entry.IsDir() {
				fmt.Fprintf(&result, "d %s/\n", entry.Name())
			} else {
				fmt.Fprintf(&result, "- %s (%d bytes)\n", entry.Name(), info.Size())
			}
		} else {
			fmt.Fprintf(&result, "? %s\n", entry.Name())
		}
	}

	return success(result.String())
}

func (e *Executor) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workDir, path)
}

func truncateOutput(s string) string {
	if len(s) > 30000 {
		return s[:30000] + "\n... (output truncated)"
	}
	return s
}
