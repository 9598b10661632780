// Package schema wraps JSON Schema compilation and validation for provider
// input and output contracts. Validation failures surface as structured
// path+message issues rather than opaque error strings.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Issue is a single validation failure at a JSON path.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Render joins issues into the single-line form used in error messages.
func Render(issues []Issue) string {
	parts := make([]string, len(issues))
	for idx, issue := range issues {
		parts[idx] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// Validator holds one compiled schema.
type Validator struct {
	name     string
	compiled *jsonschema.Schema
}

// Compile compiles a raw JSON Schema document under a synthetic resource
// name. Draft 2020-12 keywords are available.
func Compile(name string, raw []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://schemas.morket.io/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("schema %s: load: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: compile: %w", name, err)
	}
	return &Validator{name: name, compiled: compiled}, nil
}

// MustCompile is Compile for compiled-in schemas.
func MustCompile(name string, raw []byte) *Validator {
	v, err := Compile(name, raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks a JSON-typed value (map[string]any, []any, primitives).
// A nil return means the value conforms.
func (v *Validator) Validate(value any) []Issue {
	err := v.compiled.Validate(value)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Issue{{Message: err.Error()}}
	}

	var issues []Issue
	seen := map[string]bool{}
	collectLeaves(ve, &issues, seen)
	sort.Slice(issues, func(a, b int) bool {
		if issues[a].Path != issues[b].Path {
			return issues[a].Path < issues[b].Path
		}
		return issues[a].Message < issues[b].Message
	})
	return issues
}

func collectLeaves(ve *jsonschema.ValidationError, issues *[]Issue, seen map[string]bool) {
	if len(ve.Causes) == 0 {
		issue := Issue{Path: pointerToPath(ve.InstanceLocation), Message: ve.Message}
		key := issue.Path + "\x00" + issue.Message
		if !seen[key] {
			seen[key] = true
			*issues = append(*issues, issue)
		}
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, issues, seen)
	}
}

// pointerToPath converts a JSON Pointer ("/records/0/email") to the dotted
// form used in API messages ("records[0].email").
func pointerToPath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return ""
	}
	var b strings.Builder
	for _, seg := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if isIndex(seg) {
			fmt.Fprintf(&b, "[%s]", seg)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
