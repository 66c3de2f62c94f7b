package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"snaptag/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type uploadFile struct {
	name        string
	contentType string
	data        []byte
}

func buildMultipart(t *testing.T, files []uploadFile, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		header.Set("Content-Type", f.contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func newUploadApp(s *Server) *fiber.App {
	app := fiber.New(fiber.Config{BodyLimit: 8 * 1024 * 1024})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", "user_1")
		return c.Next()
	})
	app.Post("/uploads", s.UploadImages)
	return app
}

func postUpload(t *testing.T, app *fiber.App, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	store := &fakeObjectStore{}
	s := newTestServer(new(MockPostRepository), new(MockUserRepository), store, &fakeDetector{}, nil)
	app := newUploadApp(s)

	body, contentType := buildMultipart(t, []uploadFile{
		{name: "notes.txt", contentType: "text/plain", data: []byte("hello")},
	}, nil)

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, store.putKeys)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	store := &fakeObjectStore{}
	s := newTestServer(new(MockPostRepository), new(MockUserRepository), store, &fakeDetector{}, nil)
	app := newUploadApp(s)

	big := make([]byte, (1<<20)+(1<<19)) // 1.5MB against a 1MB limit
	body, contentType := buildMultipart(t, []uploadFile{
		{name: "huge.jpg", contentType: "image/jpeg", data: big},
	}, nil)

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, store.putKeys)
}

func TestUploadRejectsWholeBatchBeforeAnySideEffect(t *testing.T) {
	store := &fakeObjectStore{}
	s := newTestServer(new(MockPostRepository), new(MockUserRepository), store, &fakeDetector{}, nil)
	app := newUploadApp(s)

	body, contentType := buildMultipart(t, []uploadFile{
		{name: "ok.jpg", contentType: "image/jpeg", data: []byte("jpegdata")},
		{name: "bad.gif", contentType: "image/gif", data: []byte("gifdata")},
	}, nil)

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	// The valid file must not have been stored either.
	assert.Empty(t, store.putKeys)
}

func TestUploadRequiresFiles(t *testing.T) {
	s := newTestServer(new(MockPostRepository), new(MockUserRepository), &fakeObjectStore{}, &fakeDetector{}, nil)
	app := newUploadApp(s)

	body, contentType := buildMultipart(t, nil, map[string]string{"title": "no files"})

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadSuccessReturnsPostWithTags(t *testing.T) {
	store := &fakeObjectStore{}
	detector := &fakeDetector{labels: []models.TagWithConfidence{
		{Name: "Dog", Confidence: 98.5},
	}}
	mockRepo := new(MockPostRepository)
	mockRepo.On("CreateWithTags", mock.Anything, mock.Anything, []models.TagWithConfidence{
		{Name: "Dog", Confidence: 98.5},
	}).Return([]models.TagWithConfidence{{Name: "Dog", Confidence: 98.5}}, nil)

	s := newTestServer(mockRepo, new(MockUserRepository), store, detector, nil)
	app := newUploadApp(s)

	body, contentType := buildMultipart(t, []uploadFile{
		{name: "dog.jpg", contentType: "image/jpeg", data: []byte("jpegdata")},
	}, map[string]string{"title": "my dog", "description": "a very good dog"})

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, store.putKeys, 1)

	var payload struct {
		Files []struct {
			Name string                     `json:"name"`
			Type string                     `json:"type"`
			Size int64                      `json:"size"`
			URL  string                     `json:"url"`
			Key  string                     `json:"key"`
			Post models.Post                `json:"post"`
			Tags []models.TagWithConfidence `json:"tags"`
		} `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Files, 1)

	f := payload.Files[0]
	assert.Equal(t, "dog.jpg", f.Name)
	assert.Equal(t, "image/jpeg", f.Type)
	assert.Equal(t, int64(len("jpegdata")), f.Size)
	assert.Equal(t, store.putKeys[0], f.Key)
	assert.Equal(t, "https://signed.example/"+f.Key, f.URL)
	assert.Equal(t, "my dog", f.Post.Title)
	assert.Equal(t, []models.TagWithConfidence{{Name: "Dog", Confidence: 98.5}}, f.Tags)
	mockRepo.AssertExpectations(t)
}

func TestUploadTitleFallsBackToFilename(t *testing.T) {
	mockRepo := new(MockPostRepository)
	mockRepo.On("CreateWithTags", mock.Anything, mock.MatchedBy(func(p *models.Post) bool {
		return p.Title == "sunset.png"
	}), mock.Anything).Return([]models.TagWithConfidence{}, nil)

	s := newTestServer(mockRepo, new(MockUserRepository), &fakeObjectStore{}, &fakeDetector{}, nil)
	app := newUploadApp(s)

	body, contentType := buildMultipart(t, []uploadFile{
		{name: "sunset.png", contentType: "image/png", data: []byte("pngdata")},
	}, nil)

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	mockRepo.AssertExpectations(t)
}

func TestUploadFallsBackToBarePostWhenTaggingFails(t *testing.T) {
	detector := &fakeDetector{labels: []models.TagWithConfidence{
		{Name: "Beach", Confidence: 90},
	}}
	mockRepo := new(MockPostRepository)
	mockRepo.On("CreateWithTags", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("constraint violated"))
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	s := newTestServer(mockRepo, new(MockUserRepository), &fakeObjectStore{}, detector, nil)
	app := newUploadApp(s)

	body, contentType := buildMultipart(t, []uploadFile{
		{name: "beach.jpg", contentType: "image/jpeg", data: []byte("jpegdata")},
	}, nil)

	resp := postUpload(t, app, body, contentType)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payload struct {
		Files []struct {
			Tags []models.TagWithConfidence `json:"tags"`
		} `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Files, 1)
	assert.Empty(t, payload.Files[0].Tags)
	mockRepo.AssertExpectations(t)
}
