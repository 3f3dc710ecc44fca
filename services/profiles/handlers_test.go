package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/app/storage/memory"
	"github.com/dancelink/platform/internal/config"
	"github.com/dancelink/platform/internal/objectstore"
	"github.com/dancelink/platform/internal/session"
)

var dancer = session.Session{UserID: "dancer-1", Role: session.RoleDancer, AccessToken: "jwt"}

type fixture struct {
	store   *memory.Store
	objects *objectstore.MemoryStore
	router  *mux.Router
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	_, err := store.CreateProfile(context.Background(), profile.Profile{
		ID: "dancer-1", Name: "Dana", Email: "dana@example.com", DanceStyle: "Salsa", Gender: "Female",
	})
	require.NoError(t, err)

	objects := objectstore.NewMemoryStore("https://cdn.test")
	r := mux.NewRouter()
	New(Config{
		Backend:  storage.Static{Store: store},
		Uploader: objectstore.NewUploader(objects, nil),
	}).RegisterRoutes(r)
	return fixture{store: store, objects: objects, router: r}
}

func serve(r *mux.Router, req *http.Request, sess *session.Session) *httptest.ResponseRecorder {
	if sess != nil {
		req = req.WithContext(session.NewContext(req.Context(), *sess))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCatalogIsPublic(t *testing.T) {
	f := setup(t)
	rr := serve(f.router, httptest.NewRequest(http.MethodGet, "/catalog", nil), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var cat config.Catalog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cat))
	assert.Contains(t, cat.DanceStyles, "Salsa")
	assert.Contains(t, cat.EventGenderPreferences, "Any")
}

func TestGetProfile(t *testing.T) {
	f := setup(t)
	rr := serve(f.router, httptest.NewRequest(http.MethodGet, "/profile", nil), &dancer)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Dana"`)

	organizer := session.Session{UserID: "org-1", Role: session.RoleOrganizer}
	rr = serve(f.router, httptest.NewRequest(http.MethodGet, "/profile", nil), &organizer)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestUpdateProfilePartial(t *testing.T) {
	f := setup(t)
	body := `{"dance_style":"Ballet","age":24,"height":"5'6\" - 5'8\"","about":"  trained in Paris  "}`
	rr := serve(f.router, httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(body)), &dancer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p, err := f.store.GetProfile(context.Background(), "dancer-1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", p.Name)
	assert.Equal(t, "Ballet", p.DanceStyle)
	assert.Equal(t, "Female", p.Gender)
	require.NotNil(t, p.Age)
	assert.Equal(t, 24, *p.Age)
	require.NotNil(t, p.About)
	assert.Equal(t, "trained in Paris", *p.About)

	rr = serve(f.router, httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(`{"about":""}`)), &dancer)
	require.Equal(t, http.StatusOK, rr.Code)
	p, _ = f.store.GetProfile(context.Background(), "dancer-1")
	assert.Nil(t, p.About)
}

func TestUpdateProfileRejectsUnknownOptions(t *testing.T) {
	f := setup(t)
	for _, body := range []string{
		`{"name":"   "}`,
		`{"dance_style":"Polka"}`,
		`{"gender":"Robot"}`,
		`{"skin_tone":"Green"}`,
		`{"unknown":"field"}`,
	} {
		rr := serve(f.router, httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(body)), &dancer)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	assert.Equal(t, 0, f.store.Calls("UpdateProfile"))
}

func TestUploadVideoUpdatesProfile(t *testing.T) {
	f := setup(t)
	body, ct := multipartBody(t, "clip.MP4", "video/mp4", []byte("frames"))
	req := httptest.NewRequest(http.MethodPost, "/profile/video", body)
	req.Header.Set("Content-Type", ct)

	rr := serve(f.router, req, &dancer)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.URL, "https://cdn.test/dancer-videos/dancer-1/"))
	assert.True(t, strings.HasSuffix(resp.URL, ".mp4"))
	require.NotNil(t, resp.Profile.VideoURL)
	assert.Equal(t, resp.URL, *resp.Profile.VideoURL)

	objectPath := strings.TrimPrefix(resp.URL, "https://cdn.test/dancer-videos/")
	obj, ok := f.objects.Get(objectstore.BucketVideos, objectPath)
	require.True(t, ok)
	assert.Equal(t, "frames", string(obj.Data))
	assert.True(t, obj.Upsert)
	assert.Equal(t, "jwt", obj.AccessToken)
}

func TestUploadCertificationRejectsWrongType(t *testing.T) {
	f := setup(t)
	body, ct := multipartBody(t, "cert.gif", "image/gif", []byte("GIF89a"))
	req := httptest.NewRequest(http.MethodPost, "/profile/certification", body)
	req.Header.Set("Content-Type", ct)

	rr := serve(f.router, req, &dancer)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.Equal(t, 0, f.objects.Uploads())
	assert.Equal(t, 0, f.store.Calls("UpdateProfile"))
}

func TestUploadCertificationTooLarge(t *testing.T) {
	f := setup(t)
	body, ct := multipartBody(t, "cert.pdf", "application/pdf", bytes.Repeat([]byte("x"), 12<<20))
	req := httptest.NewRequest(http.MethodPost, "/profile/certification", body)
	req.Header.Set("Content-Type", ct)

	rr := serve(f.router, req, &dancer)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, 0, f.objects.Uploads())
}

func TestUploadRequiresFile(t *testing.T) {
	f := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/profile/video", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "text/plain")

	rr := serve(f.router, req, &dancer)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
