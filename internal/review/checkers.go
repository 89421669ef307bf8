// internal/review/checkers.go
package review

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/conductor/internal/rules"
)

// File is the candidate artifact shape checkers understand. Step outputs
// carry files as JSON-friendly maps; FilesFromOutput normalizes them.
type File struct {
	Path    string
	Content string
}

// fileKeys are the output keys that may carry file artifacts, in merge order.
var fileKeys = []string{"files", "created_files", "updated_files"}

// FilesFromOutput collects file artifacts from a candidate output, accepting
// the JSON shapes a deserialized step output can take.
func FilesFromOutput(output map[string]any) []File {
	var files []File
	for _, key := range fileKeys {
		raw, ok := output[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case []File:
			files = append(files, v...)
		case []map[string]any:
			for _, m := range v {
				files = append(files, fileFromMap(m))
			}
		case []any:
			for _, item := range v {
				switch f := item.(type) {
				case File:
					files = append(files, f)
				case map[string]any:
					files = append(files, fileFromMap(f))
				case string:
					files = append(files, File{Path: f})
				}
			}
		case []string:
			for _, path := range v {
				files = append(files, File{Path: path})
			}
		}
	}
	return files
}

func fileFromMap(m map[string]any) File {
	f := File{}
	if p, ok := m["path"].(string); ok {
		f.Path = p
	}
	if c, ok := m["content"].(string); ok {
		f.Content = c
	}
	return f
}

// CheckDomainValidation verifies that every produced file belongs to a known
// domain, stays inside that domain's directories, uses a permitted extension
// and follows the domain's naming conventions.
func CheckDomainValidation(output map[string]any, rs *rules.RuleSet) []Issue {
	var issues []Issue
	for _, f := range FilesFromOutput(output) {
		domain, ok := rs.MatchDomain(f.Path)
		if !ok {
			issues = append(issues, Issue{
				Location:     f.Path,
				Severity:     SeverityCritical,
				Message:      "file does not belong to any configured domain",
				SuggestedFix: "move the file under one of the configured domain directories",
			})
			continue
		}
		if !domain.AllowsPath(f.Path) {
			issues = append(issues, Issue{
				Location:     f.Path,
				Severity:     SeverityCritical,
				Message:      fmt.Sprintf("file is outside the %s domain directories %v", domain.Name, domain.Directories),
				SuggestedFix: fmt.Sprintf("place the file under one of %v", domain.Directories),
			})
		}
		if !domain.AllowsExtension(f.Path) {
			issues = append(issues, Issue{
				Location:     f.Path,
				Severity:     SeverityHigh,
				Message:      fmt.Sprintf("extension not permitted in the %s domain (allowed: %v)", domain.Name, domain.Extensions),
				SuggestedFix: fmt.Sprintf("use one of the %s extensions %v", domain.Name, domain.Extensions),
			})
		}
		if kind, convention := conventionFor(domain, f.Path); convention != "" {
			name := rules.BaseName(f.Path)
			if !rules.CheckNaming(name, convention) {
				issues = append(issues, Issue{
					Location:     f.Path,
					Severity:     SeverityHigh,
					Message:      fmt.Sprintf("%s name %q violates the %s %s convention", kind, name, domain.Name, convention),
					SuggestedFix: fmt.Sprintf("rename to follow %s", convention),
				})
			}
		}
		if domain.MaxFileSize > 0 && int64(len(f.Content)) > domain.MaxFileSize {
			issues = append(issues, Issue{
				Location:     f.Path,
				Severity:     SeverityMedium,
				Message:      fmt.Sprintf("file size %d exceeds the %s domain limit of %d bytes", len(f.Content), domain.Name, domain.MaxFileSize),
				SuggestedFix: "split the file into smaller modules",
			})
		}
		if domain.MaxFunctionLength > 0 {
			for _, fn := range longFunctions(f.Content, domain.MaxFunctionLength) {
				issues = append(issues, Issue{
					Location:     f.Path,
					Severity:     SeverityMedium,
					Message:      fmt.Sprintf("%s exceeds the %s domain limit of %d lines", fn, domain.Name, domain.MaxFunctionLength),
					SuggestedFix: "extract helper functions",
				})
			}
		}
	}
	return issues
}

// functionStart recognizes function declarations across the file types the
// domains configure (Go, Python, JS/TS).
var functionStart = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?(?:func|def|function)\s+([A-Za-z_$][\w$]*)`)

// longFunctions returns a description of each function whose body runs past
// the line limit. A function extends to the next declaration or end of file;
// the count is a line-based heuristic, not a parse.
func longFunctions(content string, limit int) []string {
	lines := strings.Split(content, "\n")
	var long []string
	name := ""
	start := 0
	flush := func(end int) {
		if name != "" && end-start > limit {
			long = append(long, fmt.Sprintf("function %s (%d lines)", name, end-start))
		}
	}
	for i, line := range lines {
		if m := functionStart.FindStringSubmatch(line); m != nil {
			flush(i)
			name = m[1]
			start = i
		}
	}
	flush(len(lines))
	return long
}

// conventionFor picks the naming convention applicable to a path within a
// domain: component convention for files under a components directory,
// module convention otherwise, falling back to the generic file convention.
func conventionFor(d *rules.Domain, path string) (kind, convention string) {
	if strings.Contains(path, "components/") {
		if c := d.Convention("components"); c != "" {
			return "component", c
		}
	}
	if c := d.Convention("modules"); c != "" {
		return "module", c
	}
	if c := d.Convention("files"); c != "" {
		return "file", c
	}
	return "", ""
}

// Secret-looking content patterns. Kept deliberately narrow: the checker
// flags obvious credential material, not every high-entropy string.
var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"aws access key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"private key", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
	{"bearer token", regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]{20,}`)},
	{"hardcoded password", regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']{4,}["']`)},
	{"api key assignment", regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*["'][a-z0-9]{16,}["']`)},
}

// CheckSecurity scans produced file contents for embedded credentials.
func CheckSecurity(output map[string]any, rs *rules.RuleSet) []Issue {
	var issues []Issue
	for _, f := range FilesFromOutput(output) {
		if f.Content == "" {
			continue
		}
		for _, sp := range secretPatterns {
			if sp.pattern.MatchString(f.Content) {
				issues = append(issues, Issue{
					Location:     f.Path,
					Severity:     SeverityCritical,
					Message:      fmt.Sprintf("possible %s committed in file content", sp.name),
					SuggestedFix: "move the credential to configuration or a secret store",
				})
			}
		}
	}
	return issues
}

// CheckCoverage verifies that produced source files carry companion tests in
// domains that require them, against the configured coverage threshold.
func CheckCoverage(output map[string]any, rs *rules.RuleSet) []Issue {
	files := FilesFromOutput(output)
	if len(files) == 0 {
		return nil
	}

	// Count per domain: only domains with require_tests participate.
	type counter struct {
		source int
		tested int
	}
	counts := make(map[string]*counter)
	testFiles := make(map[string]bool)
	for _, f := range files {
		if isTestFile(f.Path) {
			testFiles[testSubject(f.Path)] = true
		}
	}
	for _, f := range files {
		if isTestFile(f.Path) {
			continue
		}
		domain, ok := rs.MatchDomain(f.Path)
		if !ok || !domain.RequireTests {
			continue
		}
		c := counts[domain.Name]
		if c == nil {
			c = &counter{}
			counts[domain.Name] = c
		}
		c.source++
		if testFiles[rules.BaseName(f.Path)] {
			c.tested++
		}
	}

	var issues []Issue
	for domain, c := range counts {
		if c.source == 0 {
			continue
		}
		coverage := float64(c.tested) / float64(c.source) * 100
		if coverage < rs.Review.CoverageThreshold {
			issues = append(issues, Issue{
				Location:     domain,
				Severity:     SeverityHigh,
				Message:      fmt.Sprintf("test coverage %.0f%% below threshold %.0f%% (%d of %d files tested)", coverage, rs.Review.CoverageThreshold, c.tested, c.source),
				SuggestedFix: "add test files for the untested sources",
			})
		}
	}
	sortIssues(issues)
	return issues
}

// isTestFile recognizes the test naming schemes of the configured domains.
func isTestFile(path string) bool {
	name := rules.BaseName(path)
	base := strings.ToLower(name)
	return strings.HasSuffix(base, "_test") ||
		strings.HasSuffix(base, ".test") ||
		strings.HasSuffix(base, ".spec") ||
		strings.HasPrefix(base, "test_")
}

// testSubject maps a test file name back to the source name it covers.
func testSubject(path string) string {
	name := rules.BaseName(path)
	name = strings.TrimSuffix(name, "_test")
	name = strings.TrimSuffix(name, ".test")
	name = strings.TrimSuffix(name, ".spec")
	name = strings.TrimPrefix(name, "test_")
	return name
}
