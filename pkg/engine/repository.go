package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultBranch is used when a source reference names no branch.
const DefaultBranch = "main"

// Repository is a parsed source reference.
type Repository struct {
	Host   string `json:"host,omitempty"`
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Branch string `json:"branch"`
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// String renders the repository with its branch.
func (r Repository) String() string {
	if r.Host != "" {
		return r.Host + "/" + r.FullName() + "#" + r.Branch
	}
	return r.FullName() + "#" + r.Branch
}

var (
	// https://host/owner/repo, ssh://git@host:22/owner/repo
	schemeRepoPattern = regexp.MustCompile(`^(?:https?|ssh|git)://(?:[^@/]+@)?([^/:]+)(?::\d+)?/(.+)$`)

	// git@host:owner/repo
	scpRepoPattern = regexp.MustCompile(`^[\w.-]+@([^:/]+):(.+)$`)

	// owner/repo
	shorthandRepoPattern = regexp.MustCompile(`^[A-Za-z0-9][\w.-]*/[\w.-]+$`)

	segmentPattern = regexp.MustCompile(`^[\w.-]+$`)
)

// ParseRepository parses a repository reference. Accepted forms are
// https://host/owner/repo[.git][#branch], git@host:owner/repo[.git][#branch],
// ssh://git@host/owner/repo[.git][#branch] and owner/repo[#branch].
// GitHub-style "/tree/<branch>" URLs are also understood.
func ParseRepository(ref string) (Repository, error) {
	s := strings.TrimSpace(ref)
	if s == "" {
		return Repository{}, invalidSource(ref, "empty reference")
	}

	branch := ""
	if i := strings.Index(s, "#"); i >= 0 {
		branch = s[i+1:]
		s = s[:i]
	}

	var host, path string
	if m := schemeRepoPattern.FindStringSubmatch(s); m != nil {
		host, path = m[1], m[2]
	} else if m := scpRepoPattern.FindStringSubmatch(s); m != nil {
		host, path = m[1], m[2]
	} else if shorthandRepoPattern.MatchString(strings.TrimSuffix(s, ".git")) {
		path = s
	} else {
		return Repository{}, invalidSource(ref, "unrecognised repository format")
	}

	path = strings.Trim(path, "/")
	segments := strings.Split(path, "/")
	if len(segments) > 3 && segments[2] == "tree" {
		if branch == "" {
			branch = strings.Join(segments[3:], "/")
		}
		segments = segments[:2]
	}
	if len(segments) < 2 {
		return Repository{}, invalidSource(ref, "missing owner or repository name")
	}

	name := strings.TrimSuffix(segments[len(segments)-1], ".git")
	owner := strings.Join(segments[:len(segments)-1], "/")
	for i, seg := range segments {
		if i == len(segments)-1 {
			seg = name
		}
		if !segmentPattern.MatchString(seg) {
			return Repository{}, invalidSource(ref, fmt.Sprintf("invalid path segment %q", seg))
		}
	}

	if branch == "" {
		branch = DefaultBranch
	}

	return Repository{
		Host:   host,
		Owner:  owner,
		Name:   name,
		Branch: branch,
	}, nil
}

func invalidSource(ref, reason string) *DeployError {
	return NewValidationError(
		fmt.Sprintf("invalid repository reference %q", ref),
		errors.New(reason),
	).WithCode(ErrCodeInvalidSource)
}
