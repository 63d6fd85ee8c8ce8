// Package retriever clones candidate repositories into memory and turns them
// into analyzer snapshots.
package retriever

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/googly1030/intern-platform/internal/domain/analyzer"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

const (
	defaultMaxFileBytes = 512 << 10
	defaultMaxFiles     = 5000
	defaultMaxCommits   = 1000
)

// skipDirs are never walked.
var skipDirs = map[string]bool{".git": true, "node_modules": true}

// Retriever clones repositories with go-git into in-memory storage.
type Retriever struct {
	maxFileBytes int
	maxFiles     int
	maxCommits   int
	token        string
	log          logger.Logger
}

// New creates a Retriever with configuration options.
func New(opts ...Option) *Retriever {
	r := &Retriever{
		maxFileBytes: defaultMaxFileBytes,
		maxFiles:     defaultMaxFiles,
		maxCommits:   defaultMaxCommits,
		log:          logger.Get().Named("retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch validates repoURL, clones it and returns its snapshot.
func (r *Retriever) Fetch(ctx context.Context, repoURL string) (analyzer.Snapshot, error) {
	cloneURL, err := Normalize(repoURL)
	if err != nil {
		return analyzer.Snapshot{}, err
	}
	return r.clone(ctx, cloneURL)
}

func (r *Retriever) clone(ctx context.Context, cloneURL string) (analyzer.Snapshot, error) {
	start := time.Now()
	fs := memfs.New()
	opts := &git.CloneOptions{URL: cloneURL, Tags: git.NoTags}
	if r.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: r.token}
	}

	repo, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts)
	if err != nil {
		return analyzer.Snapshot{}, classify(ctx, err)
	}
	snap, err := r.snapshotOf(repo, fs)
	if err != nil {
		return analyzer.Snapshot{}, err
	}
	r.log.Debug(ctx, "repository cloned",
		logger.String("url", cloneURL),
		logger.Int("files", len(snap.Files)),
		logger.Int("commits", len(snap.Commits)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return snap, nil
}

// snapshotOf reads the worktree and commit log of repo.
func (r *Retriever) snapshotOf(repo *git.Repository, fs billy.Filesystem) (analyzer.Snapshot, error) {
	files := make(map[string]string)
	var dirs []string
	if err := r.walk(fs, "", files, &dirs); err != nil {
		return analyzer.Snapshot{}, errors.Wrapf(err, errors.RepoUnreachable, "read worktree: %v", err)
	}
	commits, err := r.commits(repo)
	if err != nil {
		return analyzer.Snapshot{}, errors.Wrapf(err, errors.RepoUnreachable, "read commit log: %v", err)
	}
	return analyzer.NewSnapshot(files, dirs, commits), nil
}

func (r *Retriever) walk(fs billy.Filesystem, dir string, files map[string]string, dirs *[]string) error {
	entries, err := fs.ReadDir(dirOrRoot(dir))
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			if skipDirs[e.Name()] {
				continue
			}
			*dirs = append(*dirs, p)
			if err := r.walk(fs, p, files, dirs); err != nil {
				return err
			}
			continue
		}
		if len(files) >= r.maxFiles || e.Size() > int64(r.maxFileBytes) || !e.Mode().IsRegular() {
			continue
		}
		content, err := readFile(fs, p)
		if err != nil {
			return err
		}
		if isBinary(content) {
			continue
		}
		files[p] = string(content)
	}
	return nil
}

func dirOrRoot(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}

func readFile(fs billy.Filesystem, p string) ([]byte, error) {
	f, err := fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// isBinary treats content with a NUL byte in its first 8KB as binary.
func isBinary(b []byte) bool {
	if len(b) > 8192 {
		b = b[:8192]
	}
	for _, c := range b {
		if c == 0 {
			return true
		}
	}
	return false
}

func (r *Retriever) commits(repo *git.Repository) ([]analyzer.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []analyzer.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if len(out) >= r.maxCommits {
			return errStop
		}
		out = append(out, analyzer.Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When.UTC(),
		})
		return nil
	})
	if err != nil && !stderrors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

var errStop = stderrors.New("stop iteration")

// classify maps clone failures onto the transient and fatal codes.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
		return ctx.Err()
	}
	switch {
	case stderrors.Is(err, transport.ErrRepositoryNotFound),
		stderrors.Is(err, transport.ErrEmptyRemoteRepository):
		return errors.Fatal(err, errors.RepoUnreachable)
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed):
		return errors.Wrapf(err, errors.RepoUnreachable, "repository is private or requires authentication")
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, os.ErrDeadlineExceeded):
		return errors.Transient(err, errors.NetworkTimeout)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Transient(err, errors.NetworkTimeout)
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return errors.Fatal(err, errors.RepoUnreachable)
		}
		return errors.Transient(err, errors.ServiceUnavailable)
	}
	// Remaining transport failures are treated as network trouble.
	return errors.Transient(err, errors.ServiceUnavailable)
}
