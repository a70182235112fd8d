package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

func tree(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func TestClassifyFS(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		category   engine.Category
		confidence float64
		indicators []string
		metadata   engine.Metadata
	}{
		{
			name: "next frontend",
			files: map[string]string{
				"package.json":      `{"dependencies":{"next":"14.2.0","react":"18.3.0"},"packageManager":"pnpm@9.1.0"}`,
				"public/robots.txt": "User-agent: *",
			},
			category:   engine.CategoryFrontend,
			confidence: 1,
			indicators: []string{"package.json: next", "package.json: react", "public/"},
			metadata: engine.Metadata{
				Framework:      "next",
				Runtime:        "node",
				PackageManager: "pnpm",
				Technologies:   []string{"next", "react"},
			},
		},
		{
			name: "fastapi backend with migrations",
			files: map[string]string{
				"requirements.txt":          "fastapi==0.110.0\nuvicorn[standard]\n",
				"main.py":                   "from fastapi import FastAPI\n",
				"migrations/001_init.sql":   "create table users (id serial);",
				"migrations/002_orders.sql": "create table orders (id serial);",
			},
			category:   engine.CategoryBackend,
			confidence: 0.64,
			metadata: engine.Metadata{
				Framework:        "fastapi",
				Runtime:          "python",
				PackageManager:   "pip",
				Technologies:     []string{"fastapi"},
				OptimizedRuntime: true,
			},
		},
		{
			name: "database schema",
			files: map[string]string{
				"prisma/schema.prisma":   "datasource db { provider = \"postgresql\" }",
				"migrations/0001.sql":    "create table t (id int);",
				"docker-compose.yml":     "services:\n  db:\n    image: postgres:16\n",
				"migrations/README.md":   "run with psql",
				"node_modules/x/evil.js": "",
			},
			category:   engine.CategoryDatabase,
			confidence: 1,
			indicators: []string{
				"docker-compose.yml: postgres",
				"migrations/",
				"prisma/schema.prisma",
				"sql files (migrations/0001.sql)",
			},
			metadata: engine.Metadata{Technologies: []string{"postgres", "prisma"}},
		},
		{
			name: "express with yarn",
			files: map[string]string{
				"package.json": `{"dependencies":{"express":"4.19.0"}}`,
				"yarn.lock":    "# yarn lockfile v1",
			},
			category:   engine.CategoryBackend,
			confidence: 1,
			indicators: []string{"package.json: express"},
			metadata: engine.Metadata{
				Framework:      "express",
				Runtime:        "node",
				PackageManager: "yarn",
				Technologies:   []string{"express"},
			},
		},
		{
			name: "tie prefers frontend",
			files: map[string]string{
				"index.html": "<html></html>",
				"main.py":    "print('hi')",
			},
			category:   engine.CategoryFrontend,
			confidence: 0.5,
			indicators: []string{"index.html", "main.py"},
			metadata:   engine.Metadata{Runtime: "python"},
		},
		{
			name: "skipped directories",
			files: map[string]string{
				"index.html":                 "<html></html>",
				"node_modules/pg/schema.sql": "create table t (id int);",
				".git/info/exclude.sql":      "",
			},
			category:   engine.CategoryFrontend,
			confidence: 1,
			indicators: []string{"index.html"},
		},
		{
			name:       "nothing recognised",
			files:      map[string]string{"README.md": "# hello"},
			category:   engine.CategoryUnknown,
			confidence: 0,
			indicators: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ClassifyFS(tree(t, tt.files))
			require.NoError(t, err)

			assert.Equal(t, tt.category, result.Category)
			assert.InDelta(t, tt.confidence, result.Confidence, 0.001)
			if tt.indicators != nil {
				assert.ElementsMatch(t, tt.indicators, result.Indicators)
			}
			assert.Equal(t, tt.metadata, result.Metadata)
		})
	}
}

func TestClassifyFSSQLDepthLimit(t *testing.T) {
	result, err := ClassifyFS(tree(t, map[string]string{
		"a/b/c/d/e/deep.sql": "select 1;",
		"index.html":         "<html></html>",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html"}, result.Indicators)
}

func TestClassifyFSInvalidManifest(t *testing.T) {
	_, err := ClassifyFS(tree(t, map[string]string{"package.json": "{not json"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid package.json")
}

func TestClassifyLocalPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/api\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM golang:1.25\n"), 0o644))

	result, err := New().Classify(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, engine.CategoryBackend, result.Category)
	assert.InDelta(t, 1.0, result.Confidence, 0.001)
	assert.Equal(t, "go", result.Metadata.Runtime)
	assert.Equal(t, "go", result.Metadata.PackageManager)
	assert.Equal(t, []string{"docker", "go"}, result.Metadata.Technologies)
}

func TestClassifyInvalidSource(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.Classify(ctx, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, engine.IsClassification(err))

	var de *engine.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, engine.ErrCodeInvalidSource, de.Code)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = c.Classify(ctx, file)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, engine.ErrCodeInvalidSource, de.Code)
}

type fakeCloner struct {
	targets []string
	fs      billy.Filesystem
	err     error
}

func (f *fakeCloner) Clone(_ context.Context, target string) (billy.Filesystem, error) {
	f.targets = append(f.targets, target)
	return f.fs, f.err
}

func TestClassifyRemote(t *testing.T) {
	cloner := &fakeCloner{fs: tree(t, map[string]string{
		"package.json": `{"devDependencies":{"vite":"5.0.0","svelte":"4.0.0"}}`,
	})}
	c := New(WithCloner(cloner))

	result, err := c.Classify(context.Background(), "https://github.com/acme/shop#dev")
	require.NoError(t, err)
	assert.Equal(t, engine.CategoryFrontend, result.Category)
	assert.Equal(t, "svelte", result.Metadata.Framework)
	assert.Equal(t, "npm", result.Metadata.PackageManager)
	assert.Equal(t, []string{"https://github.com/acme/shop#dev"}, cloner.targets)
}

func TestClassifyRemoteCloneFailure(t *testing.T) {
	c := New(WithCloner(&fakeCloner{err: errors.New("authentication required")}))

	_, err := c.Classify(context.Background(), "git@github.com:acme/private.git")
	require.Error(t, err)

	var de *engine.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, engine.ErrorKindClassification, de.Kind)
	assert.Equal(t, engine.ErrCodeClassifierFailed, de.Code)
	assert.Contains(t, err.Error(), "authentication required")
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://github.com/acme/shop"))
	assert.True(t, IsRemote("ssh://git@gitlab.com/acme/shop.git"))
	assert.True(t, IsRemote("git@github.com:acme/shop.git"))
	assert.False(t, IsRemote("./shop"))
	assert.False(t, IsRemote("/srv/src/shop"))
	assert.False(t, IsRemote("acme/shop"))
}

func TestSplitRemote(t *testing.T) {
	tests := []struct {
		in, url, branch string
	}{
		{"https://github.com/acme/shop", "https://github.com/acme/shop", ""},
		{"https://github.com/acme/shop.git#release", "https://github.com/acme/shop.git", "release"},
		{"https://github.com/acme/shop/tree/feature/x", "https://github.com/acme/shop", "feature/x"},
		{"git@github.com:acme/shop.git#dev", "git@github.com:acme/shop.git", "dev"},
	}
	for _, tt := range tests {
		url, branch := splitRemote(tt.in)
		assert.Equal(t, tt.url, url, tt.in)
		assert.Equal(t, tt.branch, branch, tt.in)
	}
}

func TestRemoteURL(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	got, err := RemoteURL(dir)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:acme/shop.git"},
	})
	require.NoError(t, err)

	sub := filepath.Join(dir, "services", "api")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	got, err = RemoteURL(sub)
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:acme/shop.git", got)
}
