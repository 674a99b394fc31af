package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/levitate/internal/adapters/http/api"
	"github.com/okian/levitate/internal/adapters/storage/memstore"
	service "github.com/okian/levitate/internal/app"
	"github.com/okian/levitate/internal/domain/imagegen"
	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/internal/domain/storage"
	"github.com/okian/levitate/internal/domain/types"
	"github.com/okian/levitate/pkg/errs"
	"github.com/okian/levitate/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakeDeps lets each test script the pipeline's answers.
type fakeDeps struct {
	maxUpload   int64
	uploadCalls int
	generateKey string
	generateRes *model.GenerationResult
	generateErr error
	music       []model.AudioObject
	musicErr    error
	history     []model.GenerationRecord
	historyErr  error
	historyArg  int
}

func (f *fakeDeps) Upload(_ context.Context, filename string, r io.Reader, _ int64) (types.UploadResult, error) {
	f.uploadCalls++
	n, _ := io.Copy(io.Discard, r)
	return types.UploadResult{Key: filename, Size: n}, nil
}

func (f *fakeDeps) Generate(_ context.Context, key string) (*model.GenerationResult, error) {
	f.generateKey = key
	return f.generateRes, f.generateErr
}

func (f *fakeDeps) ListMusic(context.Context) ([]model.AudioObject, error) {
	return f.music, f.musicErr
}

func (f *fakeDeps) PlaybackURL(_ context.Context, key string) (string, error) {
	return "https://play.test/" + key, nil
}

func (f *fakeDeps) OpenSigned(context.Context, string, string, string, string) (types.SignedObject, error) {
	return types.SignedObject{}, errs.NewKind("fake", errs.ErrNotFound)
}

func (f *fakeDeps) History(_ context.Context, limit int) ([]model.GenerationRecord, error) {
	f.historyArg = limit
	return f.history, f.historyErr
}

func (f *fakeDeps) MaxUploadBytes() int64 { return f.maxUpload }

type fakeStats struct{}

func (fakeStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"uploads": 3}
}

func newRouter(deps api.Dependencies) chi.Router {
	r := api.NewRouter([]string{"*"})
	api.NewServer(deps, fakeStats{}).Register(context.Background(), r)
	return r
}

func multipartBody(field, filename string, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		panic(err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()
	return body, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		panic(err)
	}
	return v
}

func TestUploadHandler(t *testing.T) {
	Convey("Given the API backed by a fake pipeline", t, func() {
		deps := &fakeDeps{maxUpload: 5 << 20}
		router := newRouter(deps)

		Convey("When a small track is uploaded", func() {
			body, ct := multipartBody("file", "song.mp3", []byte("ID3 audio"))
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := serve(router, req)

			Convey("Then it answers with the stored key under both names", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				res := decode[types.UploadResponse](rec)
				So(res.Status, ShouldEqual, "uploaded")
				So(res.Key, ShouldEqual, "song.mp3")
				So(res.S3Key, ShouldEqual, "song.mp3")
				So(res.Size, ShouldEqual, 9)
			})
		})

		Convey("When a 6 MiB track is uploaded", func() {
			body, ct := multipartBody("file", "big.mp3", bytes.Repeat([]byte{0xFF}, 6<<20))
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := serve(router, req)

			Convey("Then it is rejected with 413 and the pipeline is never called", func() {
				So(rec.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(decode[types.ErrorResponse](rec).Code, ShouldEqual, "validation")
				So(deps.uploadCalls, ShouldEqual, 0)
			})
		})

		Convey("When the file field is missing", func() {
			body, ct := multipartBody("track", "song.mp3", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := serve(router, req)

			Convey("Then it answers 400", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[types.ErrorResponse](rec).Message, ShouldContainSubstring, "file")
				So(deps.uploadCalls, ShouldEqual, 0)
			})
		})

		Convey("When the body is not multipart", func() {
			req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			rec := serve(router, req)

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestGenerateHandler(t *testing.T) {
	Convey("Given the API backed by a fake pipeline", t, func() {
		deps := &fakeDeps{maxUpload: 5 << 20}
		router := newRouter(deps)
		post := func(path, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			return serve(router, req)
		}

		Convey("When generation succeeds in upload mode", func() {
			deps.generateRes = &model.GenerationResult{
				ID:        "gen-1",
				SourceKey: "song.mp3",
				Labels:    model.Labels{Energy: model.EnergyHigh, Mood: model.MoodBright},
				Prompt:    "a prompt",
				Seed:      42,
				ImageURL:  "https://img.test/song.png",
				ImageKey:  "song.png",
			}
			rec := post("/generate", `{"key":"song.mp3"}`)

			Convey("Then the result is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				res := decode[types.GenerateResponse](rec)
				So(res.ImageURL, ShouldEqual, "https://img.test/song.png")
				So(res.ImageBase64, ShouldBeEmpty)
				So(res.Seed, ShouldEqual, 42)
				So(deps.generateKey, ShouldEqual, "song.mp3")
			})
		})

		Convey("When a client sends the legacy field under /api", func() {
			deps.generateRes = &model.GenerationResult{ImageBase64: "aGk="}
			rec := post("/api/generate", `{"s3_key":"old.mp3"}`)

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.generateKey, ShouldEqual, "old.mp3")
		})

		Convey("When the body is malformed", func() {
			rec := post("/generate", `{"key":`)

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[types.ErrorResponse](rec).Code, ShouldEqual, "validation")
		})

		Convey("When the source track is missing", func() {
			deps.generateErr = errs.WrapKind("service.Generate[fetching]", errs.ErrNotFound, storage.ErrNotFound)
			rec := post("/generate", `{"key":"ghost.mp3"}`)

			Convey("Then it is a server error carrying the kind", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				res := decode[types.ErrorResponse](rec)
				So(res.Code, ShouldEqual, "not_found")
				So(res.Message, ShouldContainSubstring, "fetching")
			})
		})

		Convey("When the remote generator fails", func() {
			deps.generateErr = errs.WrapKind("bedrock.Generate", errs.ErrRemote, errors.New("throttled"))
			rec := post("/generate", `{"key":"song.mp3"}`)

			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode[types.ErrorResponse](rec).Code, ShouldEqual, "remote")
		})
	})
}

func TestMusicAndHistoryHandlers(t *testing.T) {
	Convey("Given the API backed by a fake pipeline", t, func() {
		deps := &fakeDeps{maxUpload: 5 << 20}
		router := newRouter(deps)
		get := func(path string) *httptest.ResponseRecorder {
			return serve(router, httptest.NewRequest(http.MethodGet, path, nil))
		}

		Convey("When listing fails", func() {
			deps.musicErr = errors.New("bucket gone")
			rec := get("/music")

			Convey("Then the body still carries an empty file list", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				res := decode[types.MusicList](rec)
				So(res.Files, ShouldNotBeNil)
				So(len(res.Files), ShouldEqual, 0)
				So(res.Error, ShouldContainSubstring, "bucket gone")
			})
		})

		Convey("When a playback link is requested for a nested key", func() {
			rec := get("/music/play/albums/one.mp3")

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[types.PlaybackResponse](rec).URL, ShouldEqual, "https://play.test/albums/one.mp3")
		})

		Convey("When history is disabled", func() {
			deps.historyErr = errs.WrapKind("service.History", errs.ErrNotFound, service.ErrHistoryDisabled)
			rec := get("/generations")

			So(rec.Code, ShouldEqual, http.StatusOK)
			res := decode[types.GenerationsResponse](rec)
			So(res.Enabled, ShouldBeFalse)
			So(res.Generations, ShouldNotBeNil)
		})

		Convey("When history is enabled", func() {
			deps.history = []model.GenerationRecord{{ID: "a"}, {ID: "b"}}

			Convey("Then the default limit is 20", func() {
				rec := get("/generations")
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(deps.historyArg, ShouldEqual, 20)
				res := decode[types.GenerationsResponse](rec)
				So(res.Enabled, ShouldBeTrue)
				So(len(res.Generations), ShouldEqual, 2)
			})

			Convey("Then limits outside 1..100 are rejected", func() {
				for _, q := range []string{"0", "101", "abc", "-3"} {
					So(get("/generations?limit="+q).Code, ShouldEqual, http.StatusBadRequest)
				}
				So(get("/generations?limit=100").Code, ShouldEqual, http.StatusOK)
				So(deps.historyArg, ShouldEqual, 100)
			})
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given the API router", t, func() {
		router := newRouter(&fakeDeps{maxUpload: 1})

		Convey("Then /api/status reports liveness", func() {
			rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/status", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			res := decode[types.StatusResponse](rec)
			So(res.Status, ShouldEqual, "ok")
			So(res.Message, ShouldEqual, "Levitate API is running")
		})

		Convey("Then /healthz and /metrics serve the Prometheus registry", func() {
			for _, path := range []string{"/healthz", "/metrics"} {
				rec := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "levitate_")
			}
		})

		Convey("Then /stats returns the provider's counters", func() {
			rec := serve(router, httptest.NewRequest(http.MethodGet, "/stats", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](rec)["uploads"], ShouldEqual, 3.0)
		})

		Convey("Then every response carries a request id", func() {
			rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/status", nil))
			So(rec.Header().Get("X-Request-Id"), ShouldNotBeEmpty)
		})

		Convey("Then CORS preflights are answered for any origin", func() {
			req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
			req.Header.Set("Origin", "https://app.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := serve(router, req)
			So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})
	})
}

func TestSignedObjectsEndToEnd(t *testing.T) {
	Convey("Given the API over a real service and memory store", t, func() {
		signer := storage.NewURLSigner("api-test", "")
		store := memstore.New(memstore.WithSigner(signer))
		svc, err := service.New(
			service.WithStore(store),
			service.WithSigner(signer),
			service.WithGenerator(imagegen.GeneratorFunc(func(context.Context, imagegen.Request) ([]byte, error) {
				return nil, errors.New("unused")
			})),
		)
		So(err, ShouldBeNil)
		router := newRouter(svc)

		body, ct := multipartBody("file", "Night Drive.mp3", []byte("ID3 night drive"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ct)
		So(serve(router, req).Code, ShouldEqual, http.StatusOK)

		Convey("When the track is listed", func() {
			rec := serve(router, httptest.NewRequest(http.MethodGet, "/music", nil))

			So(rec.Code, ShouldEqual, http.StatusOK)
			res := decode[types.MusicList](rec)
			So(len(res.Files), ShouldEqual, 1)
			So(res.Files[0].Key, ShouldEqual, "Night Drive.mp3")
			So(res.Files[0].Size, ShouldEqual, 15)
		})

		Convey("When its playback link is followed", func() {
			rec := serve(router, httptest.NewRequest(http.MethodGet, "/music/play/Night%20Drive.mp3", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			link := decode[types.PlaybackResponse](rec).URL
			So(link, ShouldStartWith, "/objects/levitate-input-music/")

			got := serve(router, httptest.NewRequest(http.MethodGet, link, nil))

			Convey("Then the track bytes are served with their content type", func() {
				So(got.Code, ShouldEqual, http.StatusOK)
				So(got.Header().Get("Content-Type"), ShouldEqual, "audio/mpeg")
				So(got.Body.String(), ShouldEqual, "ID3 night drive")
			})

			Convey("Then a tampered signature is refused", func() {
				bad := serve(router, httptest.NewRequest(http.MethodGet, link+"00", nil))
				So(bad.Code, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When an expired link is followed", func() {
			past := signer.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
			link := past.Sign("levitate-input-music", "Night Drive.mp3", time.Hour)
			rec := serve(router, httptest.NewRequest(http.MethodGet, link, nil))
			So(rec.Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("When a valid link names a missing object", func() {
			link := signer.Sign("levitate-input-music", "ghost.mp3", time.Hour)
			rec := serve(router, httptest.NewRequest(http.MethodGet, link, nil))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a link names a bucket outside the service", func() {
			link := signer.Sign("elsewhere", "Night Drive.mp3", time.Hour)
			rec := serve(router, httptest.NewRequest(http.MethodGet, link, nil))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
