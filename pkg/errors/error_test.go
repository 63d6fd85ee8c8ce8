package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorClassification(t *testing.T) {
	Convey("Given coded errors", t, func() {
		Convey("Transient codes are retryable and not fatal", func() {
			err := Transient(stderrors.New("dial tcp: i/o timeout"), NetworkTimeout)
			So(IsTransient(err), ShouldBeTrue)
			So(IsFatal(err), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "dial tcp: i/o timeout")
		})

		Convey("Fatal codes abort and are not retryable", func() {
			err := Fatal(nil, InvalidRepoReference)
			So(IsFatal(err), ShouldBeTrue)
			So(IsTransient(err), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "Invalid repository reference")
		})

		Convey("A non-transient code passed to Transient is coerced", func() {
			err := Transient(nil, NotFound)
			So(err.Code, ShouldEqual, ServiceUnavailable)
		})

		Convey("Codes survive fmt wrapping", func() {
			base := Newf(RepoUnreachable, "repository %s not found", "x/y")
			wrapped := fmt.Errorf("cloning: %w", base)
			So(GetCode(wrapped), ShouldEqual, RepoUnreachable)
			So(Is(wrapped, RepoUnreachable), ShouldBeTrue)
			So(IsFatal(wrapped), ShouldBeTrue)
		})

		Convey("Foreign errors map to internal errors", func() {
			So(GetCode(stderrors.New("boom")), ShouldEqual, InternalServerError)
			So(GetCode(nil), ShouldEqual, Success)
			So(IsTransient(nil), ShouldBeFalse)
		})

		Convey("HTTP statuses follow the code", func() {
			So(Backpressure.HTTPStatus(), ShouldEqual, http.StatusTooManyRequests)
			So(NotReady.HTTPStatus(), ShouldEqual, http.StatusConflict)
			So(NotFound.HTTPStatus(), ShouldEqual, http.StatusNotFound)
			So(InvalidParams.String(), ShouldEqual, "bad_request")
		})

		Convey("Details are attached", func() {
			err := BadRequest("missing repo_url").WithDetail("field", "repo_url")
			So(err.Details["field"], ShouldEqual, "repo_url")
			So(err.Stack, ShouldNotBeEmpty)
		})
	})
}
