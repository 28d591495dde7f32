package fetch

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixcache/pixcache/internal/logging"
)

func TestNewCoordinatorRequiresDependencies(t *testing.T) {
	store := newTestStore(t)

	_, err := NewCoordinator(Options{Store: store, Logger: logging.Discard()})
	assert.Error(t, err)
	_, err = NewCoordinator(Options{Client: http.DefaultClient, Logger: logging.Discard()})
	assert.Error(t, err)
	_, err = NewCoordinator(Options{Client: http.DefaultClient, Store: store})
	assert.Error(t, err)

	c, err := NewCoordinator(Options{Client: http.DefaultClient, Store: store, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Zero(t, c.maxConcurrency, "batches are unbounded unless a limit is configured")
	assert.Equal(t, int64(defaultMaxBodyBytes), c.maxBodyBytes)
	assert.Equal(t, ImageDecoder{}, c.decoder)

	c, err = NewCoordinator(Options{Client: http.DefaultClient, Store: store, Logger: logging.Discard(), MaxPixels: 1024})
	require.NoError(t, err)
	assert.Equal(t, ImageDecoder{MaxPixels: 1024}, c.decoder)
}

func TestFetchOneSuccess(t *testing.T) {
	body := pngBytes(t, 8, 6, color.White)
	srv := newImageServer(t, map[string]stubResponse{
		"/ok.png": {status: http.StatusOK, contentType: "image/png", body: body},
	})
	store := newTestStore(t)
	c := newTestCoordinator(t, store)

	img, err := c.FetchOne(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 6, img.Height)
	assert.Equal(t, body, img.Data)
	assert.Equal(t, "image/png", img.ContentType())
	assert.Equal(t, srv.URL+"/ok.png", img.URL)

	// FetchOne 不写缓存。
	_, ok := store.Get(context.Background(), srv.URL+"/ok.png")
	assert.False(t, ok)
}

func TestFetchOneSendsHeaders(t *testing.T) {
	body := pngBytes(t, 1, 1, color.Black)
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := newTestCoordinator(t, newTestStore(t))
	_, err := c.FetchOne(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "pixcache-test", gotUA)
	assert.Equal(t, "image/*", gotAccept)
}

func TestFetchOneStatusIsNotAuthoritative(t *testing.T) {
	body := pngBytes(t, 2, 2, color.Black)
	srv := newImageServer(t, map[string]stubResponse{
		"/placeholder": {status: http.StatusNotFound, contentType: "image/png", body: body},
	})
	c := newTestCoordinator(t, newTestStore(t))

	img, err := c.FetchOne(context.Background(), srv.URL+"/placeholder")
	require.NoError(t, err)
	assert.Equal(t, 2, img.Width)
}

func TestFetchOneDecodeError(t *testing.T) {
	srv := newImageServer(t, map[string]stubResponse{
		"/error": {status: http.StatusInternalServerError, contentType: "text/html", body: []byte("<html>boom</html>")},
	})
	c := newTestCoordinator(t, newTestStore(t))

	_, err := c.FetchOne(context.Background(), srv.URL+"/error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Equal(t, KindDecode, KindOf(err))

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
}

func TestFetchOneTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone.png"
	srv.Close()

	c := newTestCoordinator(t, newTestStore(t))
	_, err := c.FetchOne(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, KindTransport, KindOf(err))
}

func TestFetchOneRejectsOversizedBody(t *testing.T) {
	body := pngBytes(t, 32, 32, color.White)
	srv := newImageServer(t, map[string]stubResponse{
		"/big.png": {status: http.StatusOK, body: body},
	})
	c := newTestCoordinator(t, newTestStore(t), func(o *Options) {
		o.MaxBodyBytes = int64(len(body) - 1)
	})

	_, err := c.FetchOne(context.Background(), srv.URL+"/big.png")
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestFetchOneRejectsOversizedDimensions(t *testing.T) {
	bomb := pngHeader(60000, 60000)
	srv := newImageServer(t, map[string]stubResponse{
		"/bomb.png": {status: http.StatusOK, contentType: "image/png", body: bomb},
	})
	store := newTestStore(t)
	c := newTestCoordinator(t, store)
	url := srv.URL + "/bomb.png"

	_, err := c.FetchOne(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.True(t, errors.Is(err, ErrTooManyPixels))

	result := c.FetchAll(context.Background(), []string{url})
	outcome := result.Outcomes[url]
	assert.False(t, outcome.OK())
	assert.True(t, errors.Is(outcome.Err, ErrTooManyPixels))
	_, ok := store.Get(context.Background(), url)
	assert.False(t, ok, "rejected image must not be cached")
}

func TestFetchAllRejectsOversizedCacheEntry(t *testing.T) {
	fresh := pngBytes(t, 2, 2, color.White)
	srv := newImageServer(t, map[string]stubResponse{
		"/img.png": {status: http.StatusOK, body: fresh},
	})
	store := newTestStore(t)
	ctx := context.Background()
	url := srv.URL + "/img.png"
	require.NoError(t, store.Put(ctx, url, pngHeader(60000, 60000)))

	result := newTestCoordinator(t, store).FetchAll(ctx, []string{url})
	outcome := result.Outcomes[url]
	require.True(t, outcome.OK())
	assert.Equal(t, SourceNetwork, outcome.Source)
	cached, _ := store.Get(ctx, url)
	assert.Equal(t, fresh, cached)
}

func TestFetchOneTrimsIdentifier(t *testing.T) {
	srv := newImageServer(t, map[string]stubResponse{
		"/ok.png": {status: http.StatusOK, body: pngBytes(t, 1, 1, color.White)},
	})
	c := newTestCoordinator(t, newTestStore(t))

	img, err := c.FetchOne(context.Background(), "  "+srv.URL+"/ok.png\n")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/ok.png", img.URL)
}

func TestFetchOneInvalidIdentifier(t *testing.T) {
	c := newTestCoordinator(t, newTestStore(t))
	_, err := c.FetchOne(context.Background(), " ")
	assert.Equal(t, KindInvalid, KindOf(err))
}

func TestFetchOneCanceled(t *testing.T) {
	body := pngBytes(t, 1, 1, color.White)
	srv := newImageServer(t, map[string]stubResponse{
		"/slow.png": {status: http.StatusOK, body: body},
	})
	c := newTestCoordinator(t, newTestStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchOne(ctx, srv.URL+"/slow.png")
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCustomDecoder(t *testing.T) {
	srv := newImageServer(t, map[string]stubResponse{
		"/raw": {status: http.StatusOK, body: []byte("raw-bytes")},
	})
	decoder := DecoderFunc(func(data []byte) (*Image, error) {
		return &Image{Data: data, Format: "raw"}, nil
	})
	c := newTestCoordinator(t, newTestStore(t), func(o *Options) { o.Decoder = decoder })

	img, err := c.FetchOne(context.Background(), srv.URL+"/raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", img.Format)
	assert.Equal(t, "image/raw", img.ContentType())
}

func TestImageDecoderRejectsGarbage(t *testing.T) {
	_, err := ImageDecoder{}.Decode(nil)
	assert.Error(t, err)
	_, err = ImageDecoder{}.Decode([]byte("GIF89a-not-really"))
	assert.Error(t, err)
}

func TestImageDecoderPixelBudget(t *testing.T) {
	_, err := ImageDecoder{}.Decode(pngHeader(60000, 60000))
	assert.ErrorIs(t, err, ErrTooManyPixels)

	body := pngBytes(t, 4, 4, color.White)
	_, err = ImageDecoder{MaxPixels: 15}.Decode(body)
	assert.ErrorIs(t, err, ErrTooManyPixels)

	img, err := ImageDecoder{MaxPixels: 16}.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
}
