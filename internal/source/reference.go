package source

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shinji-kodama/ktp-tester/internal/model"
)

// revisionRegex matches an abbreviated or full commit SHA.
var revisionRegex = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// scpLikeRegex matches the scp-style SSH form "user@host:owner/repo.git".
var scpLikeRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:(.+)$`)

// ParseReference parses a repository reference string.
//
// Accepted forms:
//
//	https://github.com/alice/lab1[.git]              default branch tip
//	https://github.com/alice/lab1/commit/<sha>        specific revision
//	https://github.com/alice/lab1/tree/<branch>       branch tip
//	<any clone URL or local path>#<branch-or-sha>     branch tip or revision
//	git@github.com:alice/lab1.git                    SSH clone URL
//
// A fragment is treated as a revision when it looks like a commit SHA
// (7 to 40 hex characters) and as a branch otherwise.
//
// Malformed input returns a CLIError with ExitFetchFailed.
func ParseReference(input string) (model.Reference, error) {
	raw := strings.TrimSpace(input)
	ref := model.Reference{Raw: raw}

	if raw == "" {
		return ref, model.NewCLIError(model.ExitFetchFailed, "repository reference is empty")
	}
	if strings.HasPrefix(raw, "-") {
		return ref, model.NewCLIError(model.ExitFetchFailed,
			fmt.Sprintf("invalid repository reference %q: must not start with '-'", raw))
	}

	base, fragment, hasFragment := strings.Cut(raw, "#")
	if hasFragment {
		if fragment == "" {
			return ref, model.NewCLIError(model.ExitFetchFailed,
				fmt.Sprintf("invalid repository reference %q: empty branch or revision after '#'", raw))
		}
		if revisionRegex.MatchString(fragment) {
			ref.Revision = fragment
		} else {
			ref.Branch = fragment
		}
	}

	// Web-UI links. The clone URL is everything before the marker with
	// ".git" appended, which is what hosting services expect.
	if repo, rev, ok := cutMarker(base, "/commit/"); ok {
		if !revisionRegex.MatchString(rev) {
			return ref, model.NewCLIError(model.ExitFetchFailed,
				fmt.Sprintf("invalid repository reference %q: %q is not a commit id", raw, rev))
		}
		base, ref.Revision, ref.Branch = withGitSuffix(repo), rev, ""
	} else if repo, branch, ok := cutMarker(base, "/tree/"); ok {
		if branch == "" {
			return ref, model.NewCLIError(model.ExitFetchFailed,
				fmt.Sprintf("invalid repository reference %q: empty branch after /tree/", raw))
		}
		base, ref.Branch, ref.Revision = withGitSuffix(repo), branch, ""
	}

	ref.URL = base

	owner, name, err := repoPath(base)
	if err != nil {
		return ref, model.WrapCLIError(model.ExitFetchFailed,
			fmt.Sprintf("invalid repository reference %q", raw), err)
	}
	ref.Owner, ref.Name = owner, name
	return ref, nil
}

// cutMarker splits s around marker when marker is present with a non-empty
// repository part before it.
func cutMarker(s, marker string) (repo, rest string, ok bool) {
	repo, rest, found := strings.Cut(s, marker)
	if !found || repo == "" {
		return "", "", false
	}
	return strings.TrimRight(repo, "/"), strings.Trim(rest, "/"), true
}

func withGitSuffix(u string) string {
	if strings.HasSuffix(u, ".git") {
		return u
	}
	return u + ".git"
}

// repoPath extracts the owner and repository name from a clone URL, an
// scp-style SSH address, or a local path.
func repoPath(base string) (owner, name string, err error) {
	var p string
	switch {
	case strings.Contains(base, "://"):
		u, parseErr := url.Parse(base)
		if parseErr != nil {
			return "", "", parseErr
		}
		p = u.Path
	case scpLikeRegex.MatchString(base):
		p = scpLikeRegex.FindStringSubmatch(base)[1]
	default:
		p = filepath.ToSlash(base)
	}

	segments := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "", "", fmt.Errorf("no repository name in %q", base)
	}

	name = strings.TrimSuffix(segments[len(segments)-1], ".git")
	if !safeSegment(name) {
		return "", "", fmt.Errorf("no repository name in %q", base)
	}

	if len(segments) > 1 {
		owner = segments[len(segments)-2]
		if !safeSegment(owner) {
			owner = ""
		}
	}
	return owner, name, nil
}

// safeSegment reports whether s can be used as one directory name.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && filepath.IsLocal(s) && !strings.ContainsAny(s, `/\:`)
}
