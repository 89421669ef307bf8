package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/conductor/internal/config"
)

func testRuleSet() *RuleSet {
	return FromConfig(map[string]config.DomainConfig{
		"frontend": {
			Directories: []string{"src/", "components/"},
			Extensions:  []string{".tsx", ".ts", ".css"},
			NamingConventions: map[string]string{
				"components": "PascalCase",
				"files":      "kebab-case",
			},
			RequireTests: true,
		},
		"backend": {
			Directories: []string{"api/", "server/"},
			Extensions:  []string{".py"},
			NamingConventions: map[string]string{
				"modules": "snake_case",
			},
		},
	}, config.ReviewConfig{CoverageThreshold: 80, BlockingSeverity: "high"})
}

func TestRuleSet_Domain(t *testing.T) {
	rs := testRuleSet()

	d, ok := rs.Domain("frontend")
	require.True(t, ok)
	assert.Equal(t, "frontend", d.Name)
	assert.True(t, d.RequireTests)

	_, ok = rs.Domain("mobile")
	assert.False(t, ok)

	assert.Equal(t, []string{"backend", "frontend"}, rs.Names())
}

func TestRuleSet_MatchDomain(t *testing.T) {
	rs := testRuleSet()

	tests := []struct {
		path   string
		domain string
		found  bool
	}{
		{"src/components/Button/Button.tsx", "frontend", true},
		{"components/Nav.tsx", "frontend", true},
		{"api/handlers/users.py", "backend", true},
		{"server/main.py", "backend", true},
		// Directory wins over extension, extension is the fallback.
		{"lib/helper.ts", "frontend", true},
		{"scripts/migrate.py", "backend", true},
		{"docs/readme.md", "", false},
		{"Makefile", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			d, ok := rs.MatchDomain(tt.path)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.domain, d.Name)
			}
		})
	}
}

func TestDomain_AllowsPath(t *testing.T) {
	rs := testRuleSet()
	frontend, _ := rs.Domain("frontend")

	assert.True(t, frontend.AllowsPath("src/components/Button.tsx"))
	assert.False(t, frontend.AllowsPath("api/users.py"))
}

func TestDomain_AllowsExtension(t *testing.T) {
	rs := testRuleSet()
	frontend, _ := rs.Domain("frontend")

	assert.True(t, frontend.AllowsExtension("src/app.tsx"))
	assert.False(t, frontend.AllowsExtension("src/app.py"))

	open := &Domain{Name: "anything"}
	assert.True(t, open.AllowsExtension("whatever.xyz"))
}

func TestCheckNaming(t *testing.T) {
	tests := []struct {
		name       string
		convention string
		want       bool
	}{
		{"TestComponent", "PascalCase", true},
		{"testComponent", "PascalCase", false},
		{"formatDate", "camelCase", true},
		{"FormatDate", "camelCase", false},
		{"user_service", "snake_case", true},
		{"userService", "snake_case", false},
		{"date-picker", "kebab-case", true},
		{"date_picker", "kebab-case", false},
		// Unknown conventions never block.
		{"whatever", "SCREAMING", true},
		{"anything", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"_"+tt.convention, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckNaming(tt.name, tt.convention))
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "Button", BaseName("src/components/Button.tsx"))
	assert.Equal(t, "date-picker", BaseName("src/utils/date-picker.ts"))
	assert.Equal(t, "users", BaseName("api/users.py"))
}
