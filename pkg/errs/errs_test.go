package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/levitate/pkg/errs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given a cause wrapped with a kind", t, func() {
		cause := errors.New("bucket unreachable")
		err := errs.WrapKind("storage.fetch", errs.ErrRemote, cause)

		Convey("Then both the kind and the cause are matchable", func() {
			So(errors.Is(err, errs.ErrRemote), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errors.Is(err, errs.ErrValidation), ShouldBeFalse)
		})

		Convey("And the message carries op, kind and cause", func() {
			So(err.Error(), ShouldEqual, "storage.fetch: remote call failed: bucket unreachable")
		})

		Convey("And re-wrapping keeps the original kind", func() {
			outer := errs.Wrap("app.generate", err)
			So(errs.KindOf(outer), ShouldEqual, errs.ErrRemote)
			So(errs.KindName(outer), ShouldEqual, "remote")
		})

		Convey("And fmt wrapping preserves the kind", func() {
			outer := fmt.Errorf("fetching: %w", err)
			So(errs.KindOf(outer), ShouldEqual, errs.ErrRemote)
		})
	})

	Convey("Given an untagged error", t, func() {
		err := errs.Wrap("app.generate", errors.New("boom"))

		Convey("Then it is classified as internal", func() {
			So(errs.KindOf(err), ShouldEqual, errs.ErrInternal)
			So(errs.KindName(err), ShouldEqual, "internal")
		})
	})

	Convey("Given nil errors", t, func() {
		Convey("Then the wrappers return nil", func() {
			So(errs.Wrap("op", nil), ShouldBeNil)
			So(errs.WrapKind("op", errs.ErrDecode, nil), ShouldBeNil)
		})
	})

	Convey("Given a bare kind", t, func() {
		err := errs.NewKind("api.upload", errs.ErrValidation)

		Convey("Then it matches the kind and prints op and kind", func() {
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.upload: validation failed")
		})
	})
}
