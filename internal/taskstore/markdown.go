package taskstore

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"github.com/harrison/kobold/internal/models"
)

// Task-list bullet format (spec §6):
//
//	- [task-1] Set up the database schema (depends on: )
//	  - Status: Working
//	  - Priority: High
//	  - Agent: python
//	  - Provider: anthropic
//	  - Commit: 3f2c1a9
//	  - Output-Files: db/schema.sql, db/migrate.go
//	  - Error: connection refused
//
// Only Status, Priority, Agent, Provider, Commit, Output-Files and Error
// are recognised metadata keys, plus a Depends-On line that is read (and
// takes precedence over the header marker) but never written by
// RenderMarkdown; unknown indented lines are ignored so operators can
// annotate tasks freely.

var (
	idPattern  = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
	depPattern = regexp.MustCompile(`\(depends on:\s*([^)]*)\)`)
)

// metaKey is a fixed, case-insensitive key prefix recognised on an indented
// metadata line directly beneath a task bullet.
type metaKey string

const (
	metaStatus      metaKey = "status"
	metaPriority    metaKey = "priority"
	metaAgent       metaKey = "agent"
	metaProvider    metaKey = "provider"
	metaCommit      metaKey = "commit"
	metaOutputFiles metaKey = "output-files"
	metaError       metaKey = "error"
)

// ParseMarkdown parses a task-list file's content into Task Records. It
// walks the goldmark AST for top-level list items (the task bullets) and
// their nested list (the metadata lines), falling back to nothing for any
// non-list content in the file (headings, prose) which is purely
// decorative for this format.
func ParseMarkdown(content []byte) ([]models.Task, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(gtext.NewReader(content))

	var tasks []models.Task
	var walkErr error

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || walkErr != nil {
			return ast.WalkContinue, nil
		}
		list, ok := n.(*ast.List)
		if !ok {
			return ast.WalkContinue, nil
		}
		// Only handle top-level lists (the bullets with [id] prefixes);
		// nested lists are consumed while building each task, not walked
		// independently.
		if _, parentIsListItem := n.Parent().(*ast.ListItem); parentIsListItem {
			return ast.WalkSkipChildren, nil
		}

		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			li, ok := item.(*ast.ListItem)
			if !ok {
				continue
			}
			task, err := parseTaskListItem(li, content)
			if err != nil {
				walkErr = err
				return ast.WalkStop, nil
			}
			if task != nil {
				tasks = append(tasks, *task)
			}
		}
		return ast.WalkSkipChildren, nil
	})

	if walkErr != nil {
		return nil, walkErr
	}
	return tasks, nil
}

// parseTaskListItem converts one top-level list item into a Task, reading
// its first line of text for the "[id] description (depends on: ...)"
// header and any nested list for metadata.
func parseTaskListItem(li *ast.ListItem, source []byte) (*models.Task, error) {
	headerLine, nested := firstTextLineAndNestedList(li, source)
	headerLine = strings.TrimSpace(headerLine)
	if headerLine == "" {
		return nil, nil
	}

	m := idPattern.FindStringSubmatch(headerLine)
	if m == nil {
		// Not a task bullet (e.g. plain prose bullet) — ignore.
		return nil, nil
	}

	task := models.Task{ID: strings.TrimSpace(m[1])}
	rest := m[2]

	if dm := depPattern.FindStringSubmatch(rest); dm != nil {
		task.Dependencies = splitDeps(dm[1])
		rest = depPattern.ReplaceAllString(rest, "")
	}
	task.Description = strings.TrimSpace(rest)
	if task.Description == "" {
		return nil, fmt.Errorf("task %s: empty description", task.ID)
	}

	if nested != nil {
		applyMetadata(&task, extractMetaLines(nested, source))
	}

	// Structured dependencies list is authoritative; the textual
	// "(depends on: ...)" marker parsed above is only a compatibility
	// fallback, kept when the metadata block has no Depends-On line
	// (spec §9 open question).
	if depsLine, ok := findMetaValue(nested, source, "depends-on"); ok {
		task.Dependencies = splitDeps(depsLine)
	}

	return &task, nil
}

func splitDeps(raw string) []string {
	var deps []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			deps = append(deps, part)
		}
	}
	return deps
}

// firstTextLineAndNestedList returns the text of the list item's own
// paragraph/text content and, if present, its one nested *ast.List (the
// metadata sub-bullets).
func firstTextLineAndNestedList(li *ast.ListItem, source []byte) (string, *ast.List) {
	var headerText strings.Builder
	var nested *ast.List

	for c := li.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.List:
			nested = n
		default:
			headerText.WriteString(nodeText(c, source))
		}
	}
	return headerText.String(), nested
}

func extractMetaLines(list *ast.List, source []byte) []string {
	var lines []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		li, ok := item.(*ast.ListItem)
		if !ok {
			continue
		}
		text, _ := firstTextLineAndNestedList(li, source)
		text = strings.TrimSpace(text)
		if text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}

func findMetaValue(list *ast.List, source []byte, key string) (string, bool) {
	if list == nil {
		return "", false
	}
	for _, line := range extractMetaLines(list, source) {
		k, v, ok := splitMetaLine(line)
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func splitMetaLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func applyMetadata(task *models.Task, lines []string) {
	for _, line := range lines {
		key, value, ok := splitMetaLine(line)
		if !ok {
			continue
		}
		switch metaKey(strings.ToLower(key)) {
		case metaStatus:
			task.Status = models.ParseTaskStatus(value)
		case metaPriority:
			task.Priority = models.ParsePriority(value)
		case metaAgent:
			task.AssignedAgentType = models.AgentType(strings.ToLower(strings.TrimSpace(value)))
		case metaProvider:
			task.ProviderName = value
		case metaCommit:
			task.CommitSha = value
		case metaOutputFiles:
			task.OutputFiles = splitDeps(value)
		case metaError:
			task.ErrorMessage = value
		}
	}
}

// nodeText renders the literal source text covered by n's inline segments.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	switch v := n.(type) {
	case *ast.TextBlock, *ast.Paragraph:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			buf.WriteString(nodeText(c, source))
		}
	case *ast.Text:
		buf.Write(v.Segment.Value(source))
		if v.SoftLineBreak() || v.HardLineBreak() {
			buf.WriteByte(' ')
		}
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			buf.WriteString(nodeText(c, source))
		}
	}
	return buf.String()
}

// RenderMarkdown serialises tasks back into the task-list wire format,
// round-tripping the metadata block documented above. Used by Save.
func RenderMarkdown(title string, tasks []models.Task) []byte {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	for _, t := range tasks {
		header := fmt.Sprintf("[%s] %s", t.ID, t.Description)
		if len(t.Dependencies) > 0 {
			header += fmt.Sprintf(" (depends on: %s)", strings.Join(t.Dependencies, ", "))
		}
		fmt.Fprintf(&b, "- %s\n", header)
		fmt.Fprintf(&b, "  - Status: %s\n", t.Status)
		fmt.Fprintf(&b, "  - Priority: %s\n", t.Priority)
		if t.AssignedAgentType != "" {
			fmt.Fprintf(&b, "  - Agent: %s\n", t.AssignedAgentType)
		}
		if t.ProviderName != "" {
			fmt.Fprintf(&b, "  - Provider: %s\n", t.ProviderName)
		}
		if t.CommitSha != "" {
			fmt.Fprintf(&b, "  - Commit: %s\n", t.CommitSha)
		}
		if len(t.OutputFiles) > 0 {
			fmt.Fprintf(&b, "  - Output-Files: %s\n", strings.Join(t.OutputFiles, ", "))
		}
		if t.ErrorMessage != "" {
			fmt.Fprintf(&b, "  - Error: %s\n", t.ErrorMessage)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}
