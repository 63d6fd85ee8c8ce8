package retriever

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func commitAll(wt *git.Worktree, msg string, when time.Time) error {
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return err
	}
	_, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Cand", Email: "cand@example.com", When: when},
	})
	return err
}

func writeFiles(fs billy.Filesystem, files map[string]string) error {
	for p, content := range files {
		if err := util.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestNormalize(t *testing.T) {
	Convey("GitHub references normalize to https clone URLs", t, func() {
		valid := map[string]string{
			"https://github.com/ada/shop":        "https://github.com/ada/shop.git",
			"https://github.com/ada/shop.git":    "https://github.com/ada/shop.git",
			"https://github.com/ada/shop/":       "https://github.com/ada/shop.git",
			"  https://www.github.com/ada/shop ": "https://github.com/ada/shop.git",
			"git@github.com:ada/my.app.git":      "https://github.com/ada/my.app.git",
			"git@github.com:ada/shop":            "https://github.com/ada/shop.git",
		}
		for in, want := range valid {
			got, err := Normalize(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}

		for _, in := range []string{
			"", "github.com/ada/shop", "https://gitlab.com/ada/shop", "https://github.com/ada",
			"https://github.com/ada/shop/tree/main", "ftp://github.com/ada/shop", "git@gitlab.com:ada/shop.git",
		} {
			_, err := Normalize(in)
			So(errors.Is(err, errors.InvalidRepoReference), ShouldBeTrue)
			So(errors.IsFatal(err), ShouldBeTrue)
		}
	})
}

func TestSnapshotOf(t *testing.T) {
	Convey("Given an in-memory repository with history", t, func() {
		fs := memfs.New()
		repo, err := git.Init(memory.NewStorage(), fs)
		So(err, ShouldBeNil)
		wt, err := repo.Worktree()
		So(err, ShouldBeNil)

		So(writeFiles(fs, map[string]string{"index.html": "<html></html>"}), ShouldBeNil)
		So(commitAll(wt, "Initial layout", base), ShouldBeNil)

		So(writeFiles(fs, map[string]string{
			"php/login.php":           "<?php echo 1;",
			"js/app.js":               "$.ajax({})",
			"node_modules/x/index.js": "ignored",
			"assets/logo.png":         "PNG\x00\x01",
			"big/blob.txt":            strings.Repeat("a", 2048),
		}), ShouldBeNil)
		So(commitAll(wt, "  Add login flow\n", base.Add(time.Hour)), ShouldBeNil)

		r := New(WithMaxFileBytes(1024), WithMaxCommits(10))
		snap, err := r.snapshotOf(repo, fs)
		So(err, ShouldBeNil)

		Convey("Text files are read with slash paths relative to the root", func() {
			So(snap.Files["index.html"], ShouldEqual, "<html></html>")
			So(snap.Files["php/login.php"], ShouldEqual, "<?php echo 1;")
			So(snap.Files, ShouldContainKey, "js/app.js")
		})

		Convey("Binary, oversized and dependency files are skipped", func() {
			So(snap.Files, ShouldNotContainKey, "assets/logo.png")
			So(snap.Files, ShouldNotContainKey, "big/blob.txt")
			So(snap.Files, ShouldNotContainKey, "node_modules/x/index.js")
			So(snap.Dirs, ShouldContain, "php")
			So(snap.Dirs, ShouldNotContain, "node_modules")
		})

		Convey("Commits are newest first with trimmed messages", func() {
			So(len(snap.Commits), ShouldEqual, 2)
			So(snap.Commits[0].Message, ShouldEqual, "Add login flow")
			So(snap.Commits[0].When, ShouldEqual, base.Add(time.Hour))
			So(snap.Commits[1].Author, ShouldEqual, "Cand")
		})

		Convey("History is capped", func() {
			capped, err := New(WithMaxCommits(1)).snapshotOf(repo, fs)
			So(err, ShouldBeNil)
			So(len(capped.Commits), ShouldEqual, 1)
		})
	})
}

func TestCloneLocalRepository(t *testing.T) {
	Convey("Cloning a local repository yields its snapshot", t, func() {
		dir := t.TempDir()
		repo, err := git.PlainInit(dir, false)
		So(err, ShouldBeNil)
		So(os.MkdirAll(filepath.Join(dir, "css"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "css", "style.css"), []byte("body{}"), 0o644), ShouldBeNil)
		wt, err := repo.Worktree()
		So(err, ShouldBeNil)
		So(commitAll(wt, "Style", base), ShouldBeNil)

		snap, err := New().clone(context.Background(), dir)
		So(err, ShouldBeNil)
		So(snap.Files["css/style.css"], ShouldEqual, "body{}")
		So(len(snap.Commits), ShouldEqual, 1)
	})

	Convey("Fetch rejects malformed references before cloning", t, func() {
		_, err := New().Fetch(context.Background(), "not a url")
		So(errors.Is(err, errors.InvalidRepoReference), ShouldBeTrue)
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	Convey("Clone errors map to transient or fatal codes", t, func() {
		ctx := context.Background()

		So(errors.IsFatal(classify(ctx, transport.ErrRepositoryNotFound)), ShouldBeTrue)
		So(errors.IsFatal(classify(ctx, transport.ErrAuthenticationRequired)), ShouldBeTrue)
		So(errors.IsFatal(classify(ctx, fmt.Errorf("wrapped: %w", transport.ErrEmptyRemoteRepository))), ShouldBeTrue)

		So(errors.Is(classify(ctx, context.DeadlineExceeded), errors.NetworkTimeout), ShouldBeTrue)
		So(errors.Is(classify(ctx, &net.OpError{Op: "dial", Err: timeoutErr{}}), errors.NetworkTimeout), ShouldBeTrue)
		So(errors.IsTransient(classify(ctx, &net.DNSError{Err: "server misbehaving", IsTemporary: true})), ShouldBeTrue)
		So(errors.IsFatal(classify(ctx, &net.DNSError{Err: "no such host", IsNotFound: true})), ShouldBeTrue)
		So(errors.IsTransient(classify(ctx, fmt.Errorf("unexpected EOF"))), ShouldBeTrue)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		So(classify(cancelled, context.Canceled), ShouldEqual, context.Canceled)
	})
}
