package discovery

import (
	"encoding/json"
	"strings"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// signal is one piece of evidence for a category.
type signal struct {
	category  engine.Category
	indicator string
	weight    float64

	// framework is set when the signal names the primary framework.
	framework string

	// runtime is set when the signal identifies the language runtime.
	runtime string

	// technology is recorded in the result metadata.
	technology string

	// optimized marks frameworks that need fixed runtime variables.
	optimized bool
}

// dependencySignal maps a package dependency to a category.
type dependencySignal struct {
	name     string
	category engine.Category
	weight   float64
}

var nodeDependencies = []dependencySignal{
	{"next", engine.CategoryFrontend, 4},
	{"nuxt", engine.CategoryFrontend, 4},
	{"astro", engine.CategoryFrontend, 4},
	{"@angular/core", engine.CategoryFrontend, 4},
	{"react", engine.CategoryFrontend, 3},
	{"vue", engine.CategoryFrontend, 3},
	{"svelte", engine.CategoryFrontend, 3},
	{"vite", engine.CategoryFrontend, 2},
	{"@nestjs/core", engine.CategoryBackend, 4},
	{"express", engine.CategoryBackend, 3},
	{"fastify", engine.CategoryBackend, 3},
	{"koa", engine.CategoryBackend, 3},
	{"hono", engine.CategoryBackend, 3},
	{"prisma", engine.CategoryDatabase, 1},
	{"knex", engine.CategoryDatabase, 1},
}

var pythonFrameworks = []dependencySignal{
	{"fastapi", engine.CategoryBackend, 4},
	{"django", engine.CategoryBackend, 4},
	{"flask", engine.CategoryBackend, 4},
}

// fileSignals fire when a file exists at the source root.
var fileSignals = map[string]signal{
	"index.html":       {category: engine.CategoryFrontend, weight: 2},
	"go.mod":           {category: engine.CategoryBackend, weight: 3, runtime: "go", technology: "go"},
	"Gemfile":          {category: engine.CategoryBackend, weight: 2, runtime: "ruby", technology: "ruby"},
	"Dockerfile":       {category: engine.CategoryBackend, weight: 1, technology: "docker"},
	"main.py":          {category: engine.CategoryBackend, weight: 2, runtime: "python"},
	"app.py":           {category: engine.CategoryBackend, weight: 2, runtime: "python"},
	"server.js":        {category: engine.CategoryBackend, weight: 2, runtime: "node"},
	"requirements.txt": {category: engine.CategoryBackend, weight: 1, runtime: "python"},
	"pyproject.toml":   {category: engine.CategoryBackend, weight: 1, runtime: "python"},
	"knexfile.js":      {category: engine.CategoryDatabase, weight: 2, technology: "knex"},
	"knexfile.ts":      {category: engine.CategoryDatabase, weight: 2, technology: "knex"},
}

// dirSignals fire when a directory exists at the source root.
var dirSignals = map[string]signal{
	"public":     {category: engine.CategoryFrontend, weight: 1},
	"migrations": {category: engine.CategoryDatabase, weight: 2},
	"supabase":   {category: engine.CategoryDatabase, weight: 3, technology: "supabase"},
}

// lockfiles map to the package manager they imply, in priority order.
var lockfiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
	{"poetry.lock", "poetry"},
	{"uv.lock", "uv"},
	{"Pipfile.lock", "pipenv"},
	{"Gemfile.lock", "bundler"},
}

// packageManifest is the subset of package.json that classification reads.
type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	PackageManager  string            `json:"packageManager"`
}

func (m *packageManifest) hasDependency(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	_, ok := m.DevDependencies[name]
	return ok
}

// manager returns the package manager named in the "packageManager"
// field, e.g. "pnpm@9.1.0" yields "pnpm".
func (m *packageManifest) manager() string {
	name, _, _ := strings.Cut(m.PackageManager, "@")
	return name
}

func packageSignals(data []byte) ([]signal, *packageManifest, error) {
	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, err
	}

	var out []signal
	for _, dep := range nodeDependencies {
		if !m.hasDependency(dep.name) {
			continue
		}
		s := signal{
			category:   dep.category,
			indicator:  "package.json: " + dep.name,
			weight:     dep.weight,
			runtime:    "node",
			technology: dep.name,
		}
		if dep.category != engine.CategoryDatabase {
			s.framework = dep.name
		}
		out = append(out, s)
	}
	return out, &m, nil
}

// pythonSignals scans requirements.txt or pyproject.toml content for
// known web frameworks.
func pythonSignals(file string, data []byte) []signal {
	content := strings.ToLower(string(data))
	var out []signal
	for _, fw := range pythonFrameworks {
		if !containsWord(content, fw.name) {
			continue
		}
		out = append(out, signal{
			category:   fw.category,
			indicator:  file + ": " + fw.name,
			weight:     fw.weight,
			framework:  fw.name,
			runtime:    "python",
			technology: fw.name,
			optimized:  fw.name == "fastapi",
		})
	}
	return out
}

// composeSignals detects a Postgres service in a compose file.
func composeSignals(file string, data []byte) []signal {
	content := strings.ToLower(string(data))
	if !strings.Contains(content, "image: postgres") && !strings.Contains(content, "image: \"postgres") &&
		!strings.Contains(content, "image: 'postgres") {
		return nil
	}
	return []signal{{
		category:   engine.CategoryDatabase,
		indicator:  file + ": postgres",
		weight:     2,
		technology: "postgres",
	}}
}

// containsWord reports whether word appears delimited by anything other
// than a letter, digit, hyphen or underscore.
func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !wordByte(s[start-1])) && (end == len(s) || !wordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func wordByte(b byte) bool {
	return b == '-' || b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
