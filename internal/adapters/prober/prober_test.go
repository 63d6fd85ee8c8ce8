package prober

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/googly1030/intern-platform/internal/adapters/artifacts"
	"github.com/googly1030/intern-platform/pkg/errors"
	"github.com/googly1030/intern-platform/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestReachable(t *testing.T) {
	Convey("Given a deployment server", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/ok", http.StatusFound) })
		mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
		mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		p := New(WithLogger(logger.NewNop()))
		ctx := context.Background()

		Convey("2xx and redirects are reachable", func() {
			So(p.Reachable(ctx, srv.URL+"/ok"), ShouldBeNil)
			So(p.Reachable(ctx, srv.URL+"/moved"), ShouldBeNil)
		})

		Convey("4xx is not reachable", func() {
			err := p.Reachable(ctx, srv.URL+"/missing")
			So(stderrors.Is(err, ErrBadStatus), ShouldBeTrue)
		})

		Convey("A timeout is reported as such", func() {
			slow := New(WithTimeout(20*time.Millisecond), WithLogger(logger.NewNop()))
			err := slow.Reachable(ctx, srv.URL+"/slow")
			So(errors.GetCode(err), ShouldEqual, errors.NetworkTimeout)
		})

		Convey("A refused connection is unavailable", func() {
			closed := httptest.NewServer(http.NotFoundHandler())
			addr := closed.URL
			closed.Close()
			err := p.Reachable(ctx, addr)
			So(errors.GetCode(err), ShouldEqual, errors.ServiceUnavailable)
		})

		Convey("Head reports status without an error", func() {
			ok, err := p.Head(ctx, srv.URL+"/missing")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			ok, err = p.Head(ctx, srv.URL+"/ok")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("A blank url is invalid", func() {
			err := p.Reachable(ctx, "  ")
			So(stderrors.Is(err, ErrNoURL), ShouldBeTrue)
		})
	})

	Convey("Bare hosts default to https", t, func() {
		u, err := withScheme("example.com/app")
		So(err, ShouldBeNil)
		So(u, ShouldEqual, "https://example.com/app")
		u, _ = withScheme("http://example.com")
		So(u, ShouldEqual, "http://example.com")
	})
}

func TestCapture(t *testing.T) {
	Convey("Given a screenshot sidecar", t, func() {
		var (
			mu    sync.Mutex
			asked []captureRequest
		)
		sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req captureRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			asked = append(asked, req)
			mu.Unlock()
			if req.Page == "profile" {
				w.WriteHeader(http.StatusBadGateway)
				_ = json.NewEncoder(w).Encode(captureResponse{Error: "page crashed"})
				return
			}
			_ = json.NewEncoder(w).Encode(captureResponse{Image: []byte("png-" + req.Page)})
		}))
		defer sidecar.Close()

		store := artifacts.NewMemoryStore("http://blobs")
		c := NewCapturer(sidecar.URL+"/", store, WithCaptureLogger(logger.NewNop()))
		ctx := context.Background()

		Convey("Successful pages are uploaded and failed ones skipped", func() {
			shots, err := c.Capture(ctx, "sub-1", "app.example.com/")
			So(err, ShouldBeNil)
			So(shots, ShouldHaveLength, 2)
			So(shots[0].Page, ShouldEqual, "login")
			So(shots[1].Page, ShouldEqual, "register")
			So(shots[0].URL, ShouldEqual, "http://blobs/memory/screenshots/sub-1/login.png")

			img, ok := store.Get("screenshots/sub-1/register.png")
			So(ok, ShouldBeTrue)
			So(string(img), ShouldEqual, "png-register")

			So(asked, ShouldHaveLength, 3)
			So(asked[0].URL, ShouldEqual, "https://app.example.com/login.html")
			So(asked[0].FullPage, ShouldBeTrue)
		})

		Convey("When every page fails the last error is returned", func() {
			only := NewCapturer(sidecar.URL, store, WithPages("profile"), WithCaptureLogger(logger.NewNop()))
			shots, err := only.Capture(ctx, "sub-2", "https://app.example.com")
			So(shots, ShouldBeEmpty)
			So(err, ShouldNotBeNil)
			So(strings.Contains(err.Error(), "page crashed"), ShouldBeTrue)
		})

		Convey("Missing collaborators are reported", func() {
			_, err := NewCapturer("", store).Capture(ctx, "s", "https://x")
			So(err, ShouldEqual, ErrNoSidecar)
			_, err = NewCapturer(sidecar.URL, nil).Capture(ctx, "s", "https://x")
			So(err, ShouldEqual, ErrNoUploader)
		})
	})
}
