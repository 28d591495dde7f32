package fetch

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixcache/pixcache/internal/cache"
	"github.com/pixcache/pixcache/internal/logging"
)

// pngBytes 生成指定尺寸的纯色 PNG。
func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

// pngHeader 只包含签名、IHDR（16 位 RGBA）与 IEND，声明尺寸但没有像素数据。
func pngHeader(width, height uint32) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("\x89PNG\r\n\x1a\n")

	writeChunk := func(kind string, data []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data)))
		buf.Write(n[:])
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		buf.WriteString(kind)
		buf.Write(data)
		binary.BigEndian.PutUint32(n[:], crc.Sum32())
		buf.Write(n[:])
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 16 // bit depth
	ihdr[9] = 6  // truecolor + alpha
	writeChunk("IHDR", ihdr)
	writeChunk("IEND", nil)
	return buf.Bytes()
}

// imageServer 是按路径返回固定响应的上游桩，并记录每个路径的命中次数。
type imageServer struct {
	*httptest.Server

	mu     sync.Mutex
	hits   map[string]int
	routes map[string]stubResponse
}

type stubResponse struct {
	status      int
	contentType string
	body        []byte
	delay       time.Duration
}

func newImageServer(t *testing.T, routes map[string]stubResponse) *imageServer {
	t.Helper()
	s := &imageServer{
		hits:   make(map[string]int),
		routes: routes,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		resp, ok := s.routes[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if resp.delay > 0 {
			select {
			case <-time.After(resp.delay):
			case <-r.Context().Done():
				return
			}
		}
		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
		}
		w.WriteHeader(resp.status)
		_, _ = w.Write(resp.body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), cache.WithLogger(logging.Discard()))
	require.NoError(t, err)
	return store
}

func newTestCoordinator(t *testing.T, store cache.Store, mutate ...func(*Options)) *Coordinator {
	t.Helper()
	opts := Options{
		Client:    &http.Client{Timeout: 5 * time.Second},
		Store:     store,
		Logger:    logging.Discard(),
		UserAgent: "pixcache-test",
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	c, err := NewCoordinator(opts)
	require.NoError(t, err)
	return c
}
