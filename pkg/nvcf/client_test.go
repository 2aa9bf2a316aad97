package nvcf

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
	"github.com/ilkoid/poncho-caption/pkg/config"
)

// fakeNVCF: сервер с тремя endpoint'ами NVCF и счётчиками вызовов.
type fakeNVCF struct {
	t *testing.T

	authorizeStatus int
	authorizeBody   string // Пусто: корректный ответ с uploadUrl
	putStatus       int
	invokeStatus    int
	invokeType      string
	invokeBody      string

	authorizeCalls atomic.Int32
	putCalls       atomic.Int32
	invokeCalls    atomic.Int32

	gotAuthorize authorizeRequest
	gotPutBody   []byte
	gotPutType   string
	gotPutDesc   string
	gotInvoke    map[string]any
	gotInvokeHdr http.Header
	server       *httptest.Server
}

func newFakeNVCF(t *testing.T) *fakeNVCF {
	f := &fakeNVCF{
		t:               t,
		authorizeStatus: http.StatusOK,
		putStatus:       http.StatusOK,
		invokeStatus:    http.StatusOK,
		invokeType:      "application/json",
		invokeBody:      `{"choices":[{"message":{"content":"A cat"}}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /assets", func(w http.ResponseWriter, r *http.Request) {
		f.authorizeCalls.Add(1)
		assert.Equal(t, "Bearer nvapi-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.gotAuthorize))

		w.WriteHeader(f.authorizeStatus)
		if f.authorizeBody != "" {
			io.WriteString(w, f.authorizeBody)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": f.server.URL + "/upload",
			"assetId":   "asset-123",
		})
	})
	mux.HandleFunc("PUT /upload", func(w http.ResponseWriter, r *http.Request) {
		f.putCalls.Add(1)
		f.gotPutBody, _ = io.ReadAll(r.Body)
		f.gotPutType = r.Header.Get("Content-Type")
		f.gotPutDesc = r.Header.Get("x-amz-meta-nvcf-asset-description")
		w.WriteHeader(f.putStatus)
	})
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		f.invokeCalls.Add(1)
		f.gotInvokeHdr = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.gotInvoke))
		w.Header().Set("Content-Type", f.invokeType)
		w.WriteHeader(f.invokeStatus)
		io.WriteString(w, f.invokeBody)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeNVCF) client(t *testing.T, img config.ImageProcConfig) *Client {
	t.Helper()
	c, err := NewFromConfig(config.VisionConfig{
		APIKey:     "nvapi-test",
		InvokeURL:  f.server.URL + "/invoke",
		AssetsURL:  f.server.URL + "/assets",
		RateLimit:  6000,
		BurstLimit: 10,
	}, img)
	require.NoError(t, err)
	return c
}

func writeImage(t *testing.T, name string, width int) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, width/2))))
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path, buf.Bytes()
}

func TestClassify_Success(t *testing.T) {
	f := newFakeNVCF(t)
	f.invokeType = "Application/JSON; charset=utf-8"
	path, data := writeImage(t, "cat.png", 40)

	raw, err := f.client(t, config.ImageProcConfig{}).Classify(context.Background(), path, "")
	require.NoError(t, err)

	assert.Equal(t, "application/json; charset=utf-8", raw.ContentType)
	assert.Equal(t, `{"choices":[{"message":{"content":"A cat"}}]}`, string(raw.Body))
	assert.Equal(t, AssetID("asset-123"), raw.AssetID)

	assert.Equal(t, "image/png", f.gotAuthorize.ContentType)
	assert.Equal(t, "Test Image", f.gotAuthorize.Description)
	assert.Equal(t, data, f.gotPutBody, "file must be uploaded unchanged")
	assert.Equal(t, "image/png", f.gotPutType)
	assert.Equal(t, "Test Image", f.gotPutDesc)

	assert.Equal(t, "asset-123", f.gotInvokeHdr.Get(HeaderInputAssetReferences))
	assert.Equal(t, "asset-123", f.gotInvokeHdr.Get(HeaderFunctionAssetIDs))
	assert.Equal(t, "Bearer nvapi-test", f.gotInvokeHdr.Get("Authorization"))

	messages, ok := f.gotInvoke["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, `<CAPTION><img src="data:image/jpeg;asset_id,asset-123" />`, msg["content"])
}

func TestClassify_AuthorizeFailure(t *testing.T) {
	f := newFakeNVCF(t)
	f.authorizeStatus = http.StatusUnauthorized
	f.authorizeBody = `{"detail":"bad key"}`
	path, _ := writeImage(t, "cat.png", 8)

	_, err := f.client(t, config.ImageProcConfig{}).Classify(context.Background(), path, "<CAPTION>")
	require.Error(t, err)

	assert.Equal(t, apperr.KindClassification, apperr.KindOf(err))
	assert.True(t, errors.Is(err, apperr.ErrUpload), "classification error must wrap the upload error")
	assert.Contains(t, err.Error(), "status 401")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	assert.EqualValues(t, 1, f.authorizeCalls.Load())
	assert.EqualValues(t, 0, f.putCalls.Load())
	assert.EqualValues(t, 0, f.invokeCalls.Load(), "no inference call after a failed upload")
}

func TestClassify_UploadFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fakeNVCF)
		wantPut int32
	}{
		{
			name:    "put rejected",
			setup:   func(f *fakeNVCF) { f.putStatus = http.StatusForbidden },
			wantPut: 1,
		},
		{
			name:    "authorize without asset id",
			setup:   func(f *fakeNVCF) { f.authorizeBody = `{"uploadUrl":"http://x.invalid"}` },
			wantPut: 0,
		},
		{
			name:    "authorize returns garbage",
			setup:   func(f *fakeNVCF) { f.authorizeBody = `not json` },
			wantPut: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeNVCF(t)
			tt.setup(f)
			path, _ := writeImage(t, "cat.png", 8)

			_, err := f.client(t, config.ImageProcConfig{}).Classify(context.Background(), path, "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrUpload))
			assert.EqualValues(t, tt.wantPut, f.putCalls.Load())
			assert.EqualValues(t, 0, f.invokeCalls.Load())
		})
	}
}

func TestClassify_InvokeFailure(t *testing.T) {
	f := newFakeNVCF(t)
	f.invokeStatus = http.StatusInternalServerError
	f.invokeBody = "boom"
	path, _ := writeImage(t, "cat.png", 8)

	_, err := f.client(t, config.ImageProcConfig{}).Classify(context.Background(), path, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindClassification, apperr.KindOf(err))
	assert.False(t, errors.Is(err, apperr.ErrUpload))
	assert.Contains(t, err.Error(), "status 500, body: boom")
}

func TestUploadAsset_MissingFile(t *testing.T) {
	f := newFakeNVCF(t)

	_, err := f.client(t, config.ImageProcConfig{}).UploadAsset(context.Background(), filepath.Join(t.TempDir(), "nope.jpg"), "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpload, apperr.KindOf(err))
	assert.EqualValues(t, 0, f.authorizeCalls.Load(), "no network call for an unreadable file")
}

func TestUploadAsset_Downscale(t *testing.T) {
	f := newFakeNVCF(t)
	path, data := writeImage(t, "wide.png", 64)

	id, err := f.client(t, config.ImageProcConfig{MaxWidth: 16, Quality: 80}).UploadAsset(context.Background(), path, "shelf photo")
	require.NoError(t, err)
	assert.Equal(t, AssetID("asset-123"), id)

	assert.Equal(t, "image/jpeg", f.gotAuthorize.ContentType)
	assert.Equal(t, "shelf photo", f.gotAuthorize.Description)
	assert.Equal(t, "image/jpeg", f.gotPutType)
	assert.NotEqual(t, data, f.gotPutBody)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.gotPutBody))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
}

func TestNewFromConfig_RequiresKey(t *testing.T) {
	_, err := NewFromConfig(config.VisionConfig{}, config.ImageProcConfig{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestAssetContent(t *testing.T) {
	assert.Equal(t,
		`<OCR><img src="data:image/jpeg;asset_id,abc-1" />`,
		AssetContent("<OCR>", "abc-1"))
}
