// internal/agent/developer.go
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductor/internal/config"
	"github.com/fyrsmithlabs/conductor/internal/rules"
)

// Developer scaffolds components and applies fixes under the domain rule
// set. It is the engine's built-in implementation agent; real deployments
// can register richer ones under the same name.
type Developer struct {
	cfg    config.AgentConfig
	rules  *rules.RuleSet
	logger *zap.Logger
}

// NewDeveloper creates the developer agent.
func NewDeveloper(cfg config.AgentConfig, rs *rules.RuleSet, logger *zap.Logger) *Developer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Developer{cfg: cfg, rules: rs, logger: logger.Named("developer")}
}

// Name implements Agent.
func (d *Developer) Name() string { return "developer" }

// Process implements Agent.
func (d *Developer) Process(ctx context.Context, req Request) (Response, error) {
	action, _ := req["action"].(string)
	if !d.allowed(action) {
		return nil, FatalError(KindBadRequest, "action not allowed: %s", action)
	}

	switch action {
	case "create_component":
		return d.createComponent(ctx, req)
	case "fix_issue":
		return d.fixIssue(ctx, req)
	default:
		return nil, FatalError(KindBadRequest, "unknown action: %s", action)
	}
}

func (d *Developer) allowed(action string) bool {
	for _, a := range d.cfg.AllowedActions {
		if a == action {
			return true
		}
	}
	return false
}

// createComponent scaffolds a component inside its domain, enforcing the
// domain's directory boundaries and naming conventions.
func (d *Developer) createComponent(ctx context.Context, req Request) (Response, error) {
	comp, _ := req["component"].(map[string]any)
	name := stringField(comp, req, "name")
	domainName := stringField(comp, req, "domain")

	if name == "" {
		return nil, FatalError(KindBadRequest, "component name is required")
	}
	domain, ok := d.rules.Domain(domainName)
	if !ok {
		return nil, FatalError(KindBadRequest, "component domain not recognized: %q", domainName)
	}

	kind, convention := componentConvention(domain)

	// On a remediation round the review gate's required fixes ride along in
	// the request; naming fixes are applied by renormalizing the name.
	if _, remediating := req["required_fixes"]; remediating && convention != "" {
		name = normalizeName(name, convention)
	}

	if convention != "" && !rules.CheckNaming(name, convention) {
		return nil, FatalError(KindRuleViolation,
			"%s name %q must follow the %s %s convention", kind, name, domain.Name, convention)
	}

	files := declaredFiles(comp)
	if len(files) == 0 {
		files = d.scaffold(domain, kind, name)
	}
	for _, f := range files {
		path, _ := f["path"].(string)
		if !domain.AllowsPath(path) {
			return nil, FatalError(KindRuleViolation,
				"invalid file path %q: must be in one of %v", path, domain.Directories)
		}
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		path, _ := f["path"].(string)
		content, _ := f["content"].(string)
		if d.cfg.Workspace != "" {
			if err := d.write(path, content); err != nil {
				return nil, RetryableError(KindUnavailable, "failed to write %s: %v", path, err)
			}
		}
		created = append(created, path)
	}

	d.logger.Info("component created",
		zap.String("component", name),
		zap.String("domain", domain.Name),
		zap.Int("files", len(created)))

	return Response{
		"component":     name,
		"domain":        domain.Name,
		"files":         files,
		"created_files": created,
	}, nil
}

// fixIssue marks the referenced files as fixed. The engine does not
// understand code; the developer records the change set and summary that a
// reviewer step can verify.
func (d *Developer) fixIssue(ctx context.Context, req Request) (Response, error) {
	issue, _ := req["issue"].(map[string]any)
	description := stringField(issue, req, "description")

	paths := pathList(issue, req)
	if len(paths) == 0 {
		return nil, FatalError(KindBadRequest, "fix_issue requires at least one file")
	}

	files := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		if _, ok := d.rules.MatchDomain(path); !ok {
			return nil, FatalError(KindRuleViolation, "invalid file path %q: no domain claims it", path)
		}
		files = append(files, map[string]any{
			"path":    path,
			"content": fmt.Sprintf("// fix applied: %s\n", description),
		})
	}

	updateTests := false
	if issue != nil {
		updateTests, _ = issue["update_tests"].(bool)
	}

	d.logger.Info("issue fixed",
		zap.String("description", description),
		zap.Int("files", len(paths)),
		zap.Bool("update_tests", updateTests))

	return Response{
		"files":         files,
		"updated_files": paths,
		"summary":       fmt.Sprintf("applied fix to %d file(s): %s", len(paths), description),
	}, nil
}

// scaffold produces the default file set for a new component.
func (d *Developer) scaffold(domain *rules.Domain, kind, name string) []map[string]any {
	ext := ".txt"
	if len(domain.Extensions) > 0 {
		ext = domain.Extensions[0]
	}

	var base string
	if kind == "component" {
		base = filepath.Join(domain.Directories[0], "components", name, name)
	} else {
		base = filepath.Join(domain.Directories[0], name)
	}

	files := []map[string]any{
		{
			"path":    base + ext,
			"content": fmt.Sprintf("// %s\n// generated scaffold\n", name),
		},
	}
	if domain.RequireTests {
		files = append(files, map[string]any{
			"path":    base + ".test" + ext,
			"content": fmt.Sprintf("// tests for %s\n", name),
		})
	}
	return files
}

func (d *Developer) write(path, content string) error {
	full := filepath.Join(d.cfg.Workspace, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}

// componentConvention picks which naming convention applies to a new
// artifact in the domain.
func componentConvention(d *rules.Domain) (kind, convention string) {
	if c := d.Convention("components"); c != "" {
		return "component", c
	}
	if c := d.Convention("modules"); c != "" {
		return "module", c
	}
	if c := d.Convention("files"); c != "" {
		return "file", c
	}
	return "component", ""
}

// stringField reads a string from the nested map first, the request second.
func stringField(nested map[string]any, req Request, key string) string {
	if nested != nil {
		if v, ok := nested[key].(string); ok && v != "" {
			return v
		}
	}
	v, _ := req[key].(string)
	return v
}

// pathList collects file paths from the nested issue map or the request.
func pathList(nested map[string]any, req Request) []string {
	sources := []any{}
	if nested != nil {
		if v, ok := nested["files"]; ok {
			sources = append(sources, v)
		}
	}
	if v, ok := req["files"]; ok {
		sources = append(sources, v)
	}

	var paths []string
	for _, src := range sources {
		switch v := src.(type) {
		case []string:
			paths = append(paths, v...)
		case []any:
			for _, item := range v {
				switch f := item.(type) {
				case string:
					paths = append(paths, f)
				case map[string]any:
					if p, ok := f["path"].(string); ok {
						paths = append(paths, p)
					}
				}
			}
		}
		if len(paths) > 0 {
			break
		}
	}
	return paths
}

// declaredFiles normalizes caller-provided file declarations.
func declaredFiles(comp map[string]any) []map[string]any {
	if comp == nil {
		return nil
	}
	raw, ok := comp["files"]
	if !ok {
		return nil
	}
	var files []map[string]any
	switch v := raw.(type) {
	case []map[string]any:
		files = v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				files = append(files, m)
			}
		}
	}
	return files
}

// normalizeName converts a name to the target convention by splitting on
// case boundaries, underscores and hyphens.
func normalizeName(name, convention string) string {
	words := splitWords(name)
	if len(words) == 0 {
		return name
	}
	switch convention {
	case "PascalCase":
		for i, w := range words {
			words[i] = capitalize(w)
		}
		return strings.Join(words, "")
	case "camelCase":
		for i, w := range words {
			if i == 0 {
				words[i] = strings.ToLower(w)
			} else {
				words[i] = capitalize(w)
			}
		}
		return strings.Join(words, "")
	case "snake_case":
		return strings.ToLower(strings.Join(words, "_"))
	case "kebab-case":
		return strings.ToLower(strings.Join(words, "-"))
	default:
		return name
	}
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func splitWords(name string) []string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range name {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			current.WriteRune(unicode.ToLower(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}
