package imagegen

import (
	"encoding/base64"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/levitate/pkg/errs"
)

func TestDecodeImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	b64 := base64.StdEncoding.EncodeToString(png)

	Convey("Given the response envelopes of different backends", t, func() {
		cases := []struct {
			name string
			body string
		}{
			{"titan images", `{"images":["` + b64 + `"]}`},
			{"stability artifacts", `{"artifacts":[{"base64":"` + b64 + `","seed":1}]}`},
			{"single image", `{"image":"` + b64 + `"}`},
			{"openai data", `{"data":[{"b64_json":"` + b64 + `"}]}`},
			{"data url", `{"image":"data:image/png;base64,` + b64 + `"}`},
			{"null error", `{"images":["` + b64 + `"],"error":null}`},
		}
		for _, tc := range cases {
			Convey("When decoding "+tc.name, func() {
				got, err := DecodeImage([]byte(tc.body))
				So(err, ShouldBeNil)
				So(got, ShouldResemble, png)
			})
		}
	})

	Convey("Given responses without a usable image", t, func() {
		Convey("When the backend reports an error string", func() {
			_, err := DecodeImage([]byte(`{"error":"content filtered"}`))
			So(errors.Is(err, ErrBackendReport), ShouldBeTrue)
			So(errors.Is(err, errs.ErrRemote), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "content filtered")
		})

		Convey("When the backend reports an error object", func() {
			_, err := DecodeImage([]byte(`{"error":{"message":"quota"}}`))
			So(err.Error(), ShouldContainSubstring, "quota")
		})

		Convey("When the images list is empty", func() {
			_, err := DecodeImage([]byte(`{"images":[]}`))
			So(errors.Is(err, ErrNoImage), ShouldBeTrue)
		})

		Convey("When the body is not JSON", func() {
			_, err := DecodeImage([]byte(`<html>502</html>`))
			So(errors.Is(err, errs.ErrRemote), ShouldBeTrue)
		})

		Convey("When the payload is not base64", func() {
			_, err := DecodeImage([]byte(`{"image":"***"}`))
			So(errors.Is(err, errs.ErrRemote), ShouldBeTrue)
		})
	})
}

func TestRequestValidate(t *testing.T) {
	Convey("Given generation requests", t, func() {
		ok := Request{Prompt: "a sky", Width: 1024, Height: 1024, GuidanceScale: 8, Seed: MaxSeed}
		So(ok.Validate(), ShouldBeNil)

		bad := ok
		bad.Prompt = "  "
		So(errors.Is(bad.Validate(), errs.ErrValidation), ShouldBeTrue)

		bad = ok
		bad.Seed = MaxSeed + 1
		So(errors.Is(bad.Validate(), errs.ErrValidation), ShouldBeTrue)

		bad = ok
		bad.Width = 0
		So(errors.Is(bad.Validate(), errs.ErrValidation), ShouldBeTrue)
	})
}
