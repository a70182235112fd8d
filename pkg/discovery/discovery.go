// Package discovery classifies a source tree as frontend, backend or
// database.
//
// Classification reads a billy.Filesystem: local paths are opened with
// osfs and remote repositories are shallow-cloned with go-git into an
// in-memory filesystem. Every recognised file, directory or dependency
// adds a weighted signal to its category; the category with the highest
// score wins and confidence is the winner's share of the total score.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rs/zerolog"

	"github.com/trinitydeploy/trinity/pkg/engine"
)

// maxDepth bounds how deep the tree is scanned for database signals.
const maxDepth = 3

// maxManifestBytes bounds how much of a manifest file is read.
const maxManifestBytes = 1 << 20

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"__pycache__":  true,
}

// categoryOrder breaks score ties.
var categoryOrder = []engine.Category{
	engine.CategoryFrontend,
	engine.CategoryBackend,
	engine.CategoryDatabase,
}

// Classifier implements engine.Classifier.
type Classifier struct {
	logger       zerolog.Logger
	cloneTimeout time.Duration
	cloner       Cloner
}

var _ engine.Classifier = (*Classifier)(nil)

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithCloneTimeout bounds remote clones.
func WithCloneTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.cloneTimeout = d
		}
	}
}

// WithCloner replaces how remote targets are fetched.
func WithCloner(cl Cloner) Option {
	return func(c *Classifier) {
		if cl != nil {
			c.cloner = cl
		}
	}
}

// New creates a classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		logger:       zerolog.Nop(),
		cloneTimeout: 2 * time.Minute,
		cloner:       GitCloner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "discovery").Logger()
	return c
}

// Classify inspects a local path or a remote git URL.
func (c *Classifier) Classify(ctx context.Context, target string) (*engine.ClassificationResult, error) {
	fs, err := c.open(ctx, target)
	if err != nil {
		return nil, err
	}

	result, err := ClassifyFS(fs)
	if err != nil {
		return nil, engine.NewClassificationError("failed to scan "+target, err).
			WithCode(engine.ErrCodeClassifierFailed)
	}

	c.logger.Debug().
		Str("target", target).
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Strs("indicators", result.Indicators).
		Msg("classified")
	return result, nil
}

func (c *Classifier) open(ctx context.Context, target string) (billy.Filesystem, error) {
	if IsRemote(target) {
		ctx, cancel := context.WithTimeout(ctx, c.cloneTimeout)
		defer cancel()

		c.logger.Info().Str("target", target).Msg("cloning remote repository")
		fs, err := c.cloner.Clone(ctx, target)
		if err != nil {
			return nil, engine.NewClassificationError("failed to clone "+target, err).
				WithCode(engine.ErrCodeClassifierFailed)
		}
		return fs, nil
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.NewClassificationError("path does not exist: "+target, err).
				WithCode(engine.ErrCodeInvalidSource)
		}
		return nil, engine.NewClassificationError("cannot read "+target, err).
			WithCode(engine.ErrCodeInvalidSource)
	}
	if !info.IsDir() {
		return nil, engine.NewClassificationError(target+" is not a directory", nil).
			WithCode(engine.ErrCodeInvalidSource)
	}
	return osfs.New(target), nil
}

// scan accumulates signals and metadata while walking a tree.
type scan struct {
	fs       billy.Filesystem
	signals  []signal
	seen     map[string]bool
	files    map[string]bool
	manifest *packageManifest
	sqlFound bool
}

// ClassifyFS classifies the tree rooted at fs.
func ClassifyFS(fs billy.Filesystem) (*engine.ClassificationResult, error) {
	s := &scan{
		fs:    fs,
		seen:  make(map[string]bool),
		files: make(map[string]bool),
	}
	if err := s.root(); err != nil {
		return nil, err
	}
	if err := s.walk("", 0); err != nil {
		return nil, err
	}
	return s.result(), nil
}

func (s *scan) add(sig signal) {
	if s.seen[sig.indicator] {
		return
	}
	s.seen[sig.indicator] = true
	s.signals = append(s.signals, sig)
}

// root evaluates the signals that only count at the top level.
func (s *scan) root() error {
	entries, err := s.fs.ReadDir("/")
	if err != nil {
		return fmt.Errorf("failed to list source root: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if sig, ok := dirSignals[name]; ok {
				sig.indicator = name + "/"
				s.add(sig)
			}
			continue
		}

		s.files[name] = true
		if sig, ok := fileSignals[name]; ok {
			sig.indicator = name
			s.add(sig)
		}

		switch {
		case name == "package.json":
			data, err := s.read(name)
			if err != nil {
				return err
			}
			sigs, manifest, err := packageSignals(data)
			if err != nil {
				return fmt.Errorf("invalid package.json: %w", err)
			}
			s.manifest = manifest
			for _, sig := range sigs {
				s.add(sig)
			}
		case name == "requirements.txt" || name == "pyproject.toml":
			data, err := s.read(name)
			if err != nil {
				return err
			}
			for _, sig := range pythonSignals(name, data) {
				s.add(sig)
			}
		case strings.HasPrefix(name, "docker-compose") || strings.HasPrefix(name, "compose."):
			data, err := s.read(name)
			if err != nil {
				return err
			}
			for _, sig := range composeSignals(name, data) {
				s.add(sig)
			}
		}
	}

	if _, err := s.fs.Stat("prisma/schema.prisma"); err == nil {
		s.add(signal{
			category:   engine.CategoryDatabase,
			indicator:  "prisma/schema.prisma",
			weight:     3,
			technology: "prisma",
		})
	}
	return nil
}

// walk looks for SQL files anywhere within maxDepth.
func (s *scan) walk(dir string, depth int) error {
	if depth > maxDepth || s.sqlFound {
		return nil
	}
	entries, err := s.fs.ReadDir(dirOrRoot(dir))
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dirOrRoot(dir), err)
	}

	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			if skipDirs[e.Name()] {
				continue
			}
			if err := s.walk(p, depth+1); err != nil {
				return err
			}
			continue
		}
		if strings.EqualFold(path.Ext(e.Name()), ".sql") {
			s.sqlFound = true
			s.add(signal{category: engine.CategoryDatabase, indicator: "sql files (" + p + ")", weight: 2})
			return nil
		}
	}
	return nil
}

func (s *scan) read(name string) ([]byte, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (s *scan) result() *engine.ClassificationResult {
	scores := make(map[engine.Category]float64)
	var total float64
	for _, sig := range s.signals {
		scores[sig.category] += sig.weight
		total += sig.weight
	}

	result := &engine.ClassificationResult{
		Category:   engine.CategoryUnknown,
		Indicators: []string{},
	}
	if total == 0 {
		return result
	}

	var best float64
	for _, cat := range categoryOrder {
		if scores[cat] > best {
			best = scores[cat]
			result.Category = cat
		}
	}
	result.Confidence = math.Round(best/total*100) / 100

	for _, sig := range s.signals {
		result.Indicators = append(result.Indicators, sig.indicator)
	}
	result.Metadata = s.metadata(result.Category)
	return result
}

func (s *scan) metadata(winner engine.Category) engine.Metadata {
	var md engine.Metadata
	var frameworkWeight float64

	for _, sig := range s.signals {
		if sig.framework != "" && sig.category == winner && sig.weight > frameworkWeight {
			md.Framework = sig.framework
			frameworkWeight = sig.weight
			md.OptimizedRuntime = sig.optimized
		}
		if md.Runtime == "" && sig.runtime != "" {
			md.Runtime = sig.runtime
		}
		if sig.technology != "" && !slices.Contains(md.Technologies, sig.technology) {
			md.Technologies = append(md.Technologies, sig.technology)
		}
	}
	slices.Sort(md.Technologies)
	md.PackageManager = s.packageManager(md.Runtime)
	return md
}

func (s *scan) packageManager(runtime string) string {
	if s.manifest != nil {
		if m := s.manifest.manager(); m != "" {
			return m
		}
	}
	for _, lf := range lockfiles {
		if s.files[lf.file] {
			return lf.manager
		}
	}
	switch {
	case runtime == "node" || s.manifest != nil:
		return "npm"
	case runtime == "python" && s.files["requirements.txt"]:
		return "pip"
	case runtime == "go":
		return "go"
	}
	return ""
}

func dirOrRoot(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}
