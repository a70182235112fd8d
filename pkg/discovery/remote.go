package discovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

var (
	schemePattern = regexp.MustCompile(`^(?:https?|ssh|git|file)://`)
	scpPattern    = regexp.MustCompile(`^[\w.-]+@[^:/]+:.+$`)
)

// IsRemote reports whether target names a git remote rather than a local
// directory.
func IsRemote(target string) bool {
	return schemePattern.MatchString(target) || scpPattern.MatchString(target)
}

// Cloner fetches a remote repository into a filesystem.
type Cloner interface {
	Clone(ctx context.Context, target string) (billy.Filesystem, error)
}

// GitCloner shallow-clones into memory with go-git.
type GitCloner struct {
	// Token authenticates https clones of private repositories.
	Token string
}

// Clone fetches the tip of the requested branch, or the remote HEAD when
// none is named.
func (g GitCloner) Clone(ctx context.Context, target string) (billy.Filesystem, error) {
	url, branch := splitRemote(target)

	opts := &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}
	if g.Token != "" && strings.HasPrefix(url, "http") {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: g.Token}
	}

	fs := memfs.New()
	if _, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts); err != nil {
		return nil, fmt.Errorf("git clone %s: %w", url, err)
	}
	return fs, nil
}

// splitRemote separates a "#branch" fragment or a "/tree/<branch>" suffix
// from a clone URL.
func splitRemote(target string) (url, branch string) {
	url = strings.TrimSpace(target)
	if i := strings.Index(url, "#"); i >= 0 {
		url, branch = url[:i], url[i+1:]
	}
	if i := strings.Index(url, "/tree/"); i >= 0 && schemePattern.MatchString(url) {
		if branch == "" {
			branch = strings.Trim(url[i+len("/tree/"):], "/")
		}
		url = url[:i]
	}
	return strings.TrimSuffix(url, "/"), branch
}

// RemoteURL returns the origin URL of the git checkout containing path.
// It returns an empty string when path is not inside a repository or the
// repository has no origin.
func RemoteURL(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", path, err)
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read origin: %w", err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", nil
	}
	return urls[0], nil
}
