package engine

import (
	"strings"
	"unicode"
)

// Resource name suffixes for the three platforms.
const (
	DatabaseSuffix = "-db"
	BackendSuffix  = "-backend"
	FrontendSuffix = "-frontend"
)

// fallbackBaseName is used when a target has no usable last segment.
const fallbackBaseName = "app"

// DeriveName computes a base resource name from a path or URL.
//
// The last path segment is taken with any "#fragment", trailing slash and
// ".git" suffix removed; hyphens and underscores become word breaks, words
// are title-cased and joined, and the result is lower-cased. "my-app" and
// "my-app.git" both yield "myapp".
func DeriveName(source string) string {
	s := strings.TrimSpace(source)
	if i := strings.Index(s, "#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/\\")
	if i := strings.LastIndexAny(s, "/\\:"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".git")

	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return ' '
		}
		return r
	}, s)

	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	name := strings.ToLower(strings.Join(words, ""))
	if name == "" || name == "." || name == ".." {
		return fallbackBaseName
	}
	return name
}

// Names holds the resolved resource names for a run.
type Names struct {
	Base            string `json:"base"`
	DatabaseProject string `json:"database_project,omitempty"`
	ComputeProject  string `json:"compute_project,omitempty"`
	ComputeService  string `json:"compute_service,omitempty"`
	FrontendProject string `json:"frontend_project,omitempty"`
}

// All returns every non-empty resolved name.
func (n Names) All() []string {
	out := make([]string, 0, 4)
	for _, s := range []string{n.DatabaseProject, n.ComputeProject, n.ComputeService, n.FrontendProject} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ResolveNames computes the full-pipeline names. A projectName override
// replaces the derived base (suffixes still apply); a serviceName override
// is used verbatim for the compute service.
func ResolveNames(target, projectName, serviceName string) Names {
	base := DeriveName(target)
	if projectName != "" {
		base = projectName
	}
	n := Names{
		Base:            base,
		DatabaseProject: base + DatabaseSuffix,
		ComputeProject:  base + BackendSuffix,
		ComputeService:  base + BackendSuffix,
		FrontendProject: base + FrontendSuffix,
	}
	if serviceName != "" {
		n.ComputeService = serviceName
	}
	return n
}

// ResolveSingleNames computes names for a single-platform run. A
// projectName override is used verbatim as the project name.
func ResolveSingleNames(category Category, target, projectName, serviceName string) Names {
	base := DeriveName(target)
	n := Names{Base: base}

	project := func(suffix string) string {
		if projectName != "" {
			return projectName
		}
		return base + suffix
	}

	switch category {
	case CategoryDatabase:
		n.DatabaseProject = project(DatabaseSuffix)
	case CategoryBackend:
		n.ComputeProject = project(BackendSuffix)
		n.ComputeService = base + BackendSuffix
		if serviceName != "" {
			n.ComputeService = serviceName
		}
	case CategoryFrontend:
		n.FrontendProject = project(FrontendSuffix)
	}
	return n
}
