// Package toolcap implements the tool-capability set a Worker dispatches
// against its task's workspace (spec §4.3): file read/write/append/edit,
// code search, shell command execution, and the two no-op-by-default
// interactive tools ask_user and display_text. Every tool call is
// represented uniformly as a (name, input map) pair and returns a plain
// string result — a success payload or an "Error: …" prefix — never a Go
// error, so a Worker's step loop never has to distinguish tool failure
// from tool success at the type level.
package toolcap

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mvdan.cc/sh/v3/shell"

	"github.com/harrison/kobold/internal/provider"
)

const (
	toolReadFile      = "read_file"
	toolWriteFile     = "write_file"
	toolAppendToFile  = "append_to_file"
	toolEditFile      = "edit_file"
	toolSearchCode    = "search_code"
	toolRunCommand    = "run_command"
	toolAskUser       = "ask_user"
	toolDisplayText   = "display_text"

	defaultCommandTimeout = 30 * time.Second
	maxCommandTimeout     = 300 * time.Second
	maxOutputBytes        = 8192
	filePreviewBytes      = 2000
)

// Logger is the narrow seam toolcap uses to surface display_text and
// command execution without importing the logger package's full Logger
// interface.
type Logger interface {
	Infof(format string, args ...interface{})
}

// Dispatcher executes tool calls against one worker's sandboxed workspace.
// It holds no conversation state; a fresh Dispatcher is cheap to build per
// task.
type Dispatcher struct {
	WorkDir              string
	AllowedExternalPaths []string
	CommandTimeout       time.Duration
	Log                  Logger

	// AskUser answers ask_user calls. Nil means the kernel runs unattended
	// and every question is declined (spec §1: interactive requirements
	// gathering is out of scope for the execution kernel).
	AskUser func(question, context string) string
}

// Definitions returns the ToolDefinition set the Planner's and Worker's
// model calls advertise, in the order spec §4.3 lists them.
func Definitions() []provider.ToolDefinition {
	return []provider.ToolDefinition{
		{
			Name:        toolReadFile,
			Description: "Read the full contents of a file in the workspace.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        toolWriteFile,
			Description: "Write content to a file, overwriting it if present.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":        map[string]any{"type": "string"},
					"content":     map[string]any{"type": "string"},
					"create_dirs": map[string]any{"type": "boolean"},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        toolAppendToFile,
			Description: "Append content to the end of a file, creating it if absent.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":        map[string]any{"type": "string"},
					"content":     map[string]any{"type": "string"},
					"create_dirs": map[string]any{"type": "boolean"},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        toolEditFile,
			Description: "Replace a single exact occurrence of old_text with new_text in a file.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":     map[string]any{"type": "string"},
					"old_text": map[string]any{"type": "string"},
					"new_text": map[string]any{"type": "string"},
				},
				"required": []string{"path", "old_text", "new_text"},
			},
		},
		{
			Name:        toolSearchCode,
			Description: "Search workspace files for a literal or regular-expression query.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":          map[string]any{"type": "string"},
					"directory":      map[string]any{"type": "string"},
					"recursive":      map[string]any{"type": "boolean"},
					"pattern":        map[string]any{"type": "string"},
					"case_sensitive": map[string]any{"type": "boolean"},
					"regex":          map[string]any{"type": "boolean"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        toolRunCommand,
			Description: "Run a shell command in the workspace and return combined stdout/stderr.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command":         map[string]any{"type": "string"},
					"arguments":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"timeout_seconds": map[string]any{"type": "integer"},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        toolAskUser,
			Description: "Ask the supervising user a clarifying question.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
					"context":  map[string]any{"type": "string"},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        toolDisplayText,
			Description: "Display informational text to the user without expecting a reply.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text":  map[string]any{"type": "string"},
					"title": map[string]any{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
	}
}

// Dispatch executes the named tool against d.WorkDir with the given input
// and returns its string result. Unknown tool names return an Error string
// rather than panicking, since a model can always hallucinate a tool name.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, input map[string]any) string {
	switch name {
	case toolReadFile:
		return d.readFile(stringArg(input, "path"))
	case toolWriteFile:
		return d.writeFile(stringArg(input, "path"), stringArg(input, "content"), boolArg(input, "create_dirs"))
	case toolAppendToFile:
		return d.appendToFile(stringArg(input, "path"), stringArg(input, "content"), boolArg(input, "create_dirs"))
	case toolEditFile:
		return d.editFile(stringArg(input, "path"), stringArg(input, "old_text"), stringArg(input, "new_text"))
	case toolSearchCode:
		return d.searchCode(input)
	case toolRunCommand:
		return d.runCommand(ctx, input)
	case toolAskUser:
		return d.askUser(stringArg(input, "question"), stringArg(input, "context"))
	case toolDisplayText:
		return d.displayText(stringArg(input, "text"), stringArg(input, "title"))
	default:
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
}

func stringArg(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

func boolArg(input map[string]any, key string) bool {
	b, _ := input[key].(bool)
	return b
}

// resolvePath maps a worker-supplied path to an absolute path, enforcing
// the sandbox rule of spec §4.3: a path escaping WorkDir is denied unless
// it falls under one of AllowedExternalPaths.
func (d *Dispatcher) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		if d.withinAllowed(path) || d.within(path, d.WorkDir) {
			return filepath.Clean(path), nil
		}
		return "", ErrPathDenied
	}

	abs := filepath.Clean(filepath.Join(d.WorkDir, path))
	if d.within(abs, d.WorkDir) || d.withinAllowed(abs) {
		return abs, nil
	}
	return "", ErrPathDenied
}

func (d *Dispatcher) within(target, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), target)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func (d *Dispatcher) withinAllowed(target string) bool {
	for _, allowed := range d.AllowedExternalPaths {
		if d.within(target, allowed) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) readFile(path string) string {
	resolved, err := d.resolvePath(path)
	if err != nil {
		return "Error: Access denied"
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return string(data)
}

func (d *Dispatcher) writeFile(path, content string, createDirs bool) string {
	resolved, err := d.resolvePath(path)
	if err != nil {
		return "Error: Access denied"
	}
	if createDirs {
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path)
}

func (d *Dispatcher) appendToFile(path, content string, createDirs bool) string {
	resolved, err := d.resolvePath(path)
	if err != nil {
		return "Error: Access denied"
	}
	if createDirs {
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
	}
	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Appended %d bytes to %s", len(content), path)
}

// editFile replaces a single exact occurrence of oldText with newText. Per
// spec §4.3, oldText must appear exactly once: zero matches return an error
// carrying a truncated file preview, more than one returns the occurrence
// count.
func (d *Dispatcher) editFile(path, oldText, newText string) string {
	resolved, err := d.resolvePath(path)
	if err != nil {
		return "Error: Access denied"
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	content := string(data)
	count := strings.Count(content, oldText)
	switch {
	case count == 0:
		return fmt.Sprintf("Error: old_text not found in %s\n%s", path, previewOf(content))
	case count > 1:
		return fmt.Sprintf("Error: old_text appears %d times in %s, must appear exactly once", count, path)
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Edited %s", path)
}

func previewOf(content string) string {
	if len(content) <= filePreviewBytes {
		return content
	}
	return fmt.Sprintf("%s\n... (truncated, %d chars total)", content[:filePreviewBytes], len(content))
}

func (d *Dispatcher) searchCode(input map[string]any) string {
	query := stringArg(input, "query")
	if query == "" {
		return "Error: query is required"
	}
	dir := stringArg(input, "directory")
	if dir == "" {
		dir = "."
	}
	resolved, err := d.resolvePath(dir)
	if err != nil {
		return "Error: Access denied"
	}
	recursive := true
	if v, ok := input["recursive"].(bool); ok {
		recursive = v
	}
	caseSensitive := boolArg(input, "case_sensitive")
	pattern := stringArg(input, "pattern")

	needle := query
	if !caseSensitive {
		needle = strings.ToLower(needle)
	}
	var re *regexp.Regexp
	if boolArg(input, "regex") {
		expr := query
		if !caseSensitive {
			expr = "(?i)" + expr
		}
		if re, err = regexp.Compile(expr); err != nil {
			return fmt.Sprintf("Error: invalid regex: %v", err)
		}
	}

	var hits []string
	walker := func(p string, isDir bool) error {
		if isDir {
			if !recursive && p != resolved {
				return filepath.SkipDir
			}
			return nil
		}
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, filepath.Base(p)); !ok {
				return nil
			}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(d.WorkDir, p)
		for i, line := range strings.Split(string(data), "\n") {
			haystack := line
			if !caseSensitive {
				haystack = strings.ToLower(haystack)
			}
			if (re != nil && re.MatchString(line)) || (re == nil && strings.Contains(haystack, needle)) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
			}
		}
		return nil
	}

	if err := walkDir(resolved, walker); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if len(hits) == 0 {
		return "No matches found"
	}
	return strings.Join(hits, "\n")
}

func walkDir(root string, fn func(path string, isDir bool) error) error {
	return filepath.WalkDir(root, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if entry.Name() == ".git" && p != root {
				return filepath.SkipDir
			}
			return fn(p, true)
		}
		return fn(p, false)
	})
}

// runCommand splits command with POSIX shell word-splitting rules rather
// than exec.Command's raw argv, so quoted arguments in the model's command
// string behave the way a shell user expects.
func (d *Dispatcher) runCommand(ctx context.Context, input map[string]any) string {
	command := stringArg(input, "command")
	if command == "" {
		return "Error: command is required"
	}

	fields, err := shell.Fields(command, nil)
	if err != nil {
		return fmt.Sprintf("Error: invalid command: %v", err)
	}
	if len(fields) == 0 {
		return "Error: command is required"
	}

	if extra, ok := input["arguments"].([]any); ok {
		for _, a := range extra {
			if s, ok := a.(string); ok {
				fields = append(fields, s)
			}
		}
	}

	timeout := d.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if secs, ok := numberArg(input, "timeout_seconds"); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, fields[0], fields[1:]...)
	cmd.Dir = d.WorkDir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := out.String()
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + fmt.Sprintf("\n... (truncated, %d bytes total)", out.Len())
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: command timed out after %s\n%s", timeout, output)
	}
	if runErr != nil {
		return fmt.Sprintf("Error: %v\n%s", runErr, output)
	}
	if output == "" {
		return "(no output)"
	}
	return output
}

func numberArg(input map[string]any, key string) (float64, bool) {
	switch v := input[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func (d *Dispatcher) askUser(question, context string) string {
	if d.AskUser == nil {
		return "Error: no interactive user available; proceed using your best judgment"
	}
	return d.AskUser(question, context)
}

func (d *Dispatcher) displayText(text, title string) string {
	if d.Log != nil {
		if title != "" {
			d.Log.Infof("%s: %s", title, text)
		} else {
			d.Log.Infof("%s", text)
		}
	}
	return "Displayed"
}
