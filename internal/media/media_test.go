package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fakes
// =============================================================================

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut func(key string) error
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (s *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if s.failPut != nil {
		if err := s.failPut(key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *memStore) Delete(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := s.objects[k]; ok {
			delete(s.objects, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) URL(key string) string { return "https://cdn.test/" + key }

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type keyLog struct {
	mu   sync.Mutex
	keys []string
	ids  []uuid.UUID
}

func (k *keyLog) RecordUploadedKey(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, key)
}

func (k *keyLog) RecordImageID(id uuid.UUID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ids = append(k.ids, id)
}

type fakeCodec struct {
	fail map[Format]error
	used []Format
	mu   sync.Mutex
}

func (c *fakeCodec) Encode(_ context.Context, _ image.Image, f Format, _ int) ([]byte, error) {
	c.mu.Lock()
	c.used = append(c.used, f)
	c.mu.Unlock()
	if err := c.fail[f]; err != nil {
		return nil, err
	}
	return []byte("encoded-" + string(f)), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func noPacing() DownloadConfig {
	cfg := DefaultDownloadConfig()
	cfg.HostRate = 0
	cfg.Backoff = time.Millisecond
	return cfg
}

// =============================================================================
// Format and keys
// =============================================================================

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, FormatJPEG},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), FormatPNG},
		{"gif", []byte("GIF89a...."), FormatGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00"), FormatAVIF},
		{"heic", []byte("\x00\x00\x00\x18ftypheic\x00\x00"), FormatHEIC},
		{"avif behind mif1", []byte("\x00\x00\x00\x1cftypmif1\x00\x00\x00\x00mif1avifmiaf"), FormatAVIF},
		{"heif without avif brand", []byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00mif1heic"), FormatHEIC},
		{"bmp", []byte("BM\x36\x00\x00\x00\x00\x00\x00\x00\x36\x00\x00\x00"), FormatBMP},
		{"tiff", []byte("II*\x00\x08\x00\x00\x00"), FormatTIFF},
		{"html", []byte("<!doctype html><html>"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sniff(tt.data), tt.name)
	}
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("0b3c6a1e-4d2f-4c8e-9a51-7f0d2e3b4c5d")

	assert.Equal(t, "Images/Catalog/S-123/0b3c6a1e-4d2f-4c8e-9a51-7f0d2e3b4c5d.avif",
		CompressedKey(FolderCatalog, "S-123", id, FormatAVIF))
	assert.Equal(t, "Images/Lot/S-123/originals/0b3c6a1e-4d2f-4c8e-9a51-7f0d2e3b4c5d_original.png",
		OriginalKey(FolderLot, "S-123", id, FormatPNG))
	assert.Equal(t, ".jpg", FormatJPEG.Ext())
	assert.Equal(t, "image/webp", FormatWebP.MIMEType())
}

// =============================================================================
// Downloader
// =============================================================================

func TestHTTPDownloader_404IsPermanent(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(noPacing(), srv.Client())
	_, err := d.Download(context.Background(), srv.URL+"/missing.jpg")

	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusNotFound, derr.StatusCode)
	assert.Equal(t, srv.URL+"/missing.jpg", derr.URL)
	assert.Equal(t, int64(1), hits.Load(), "4xx must not be retried")
}

func TestHTTPDownloader_RetriesTransientFailures(t *testing.T) {
	body := pngBytes(t, 4, 4)
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cfg := noPacing()
	cfg.Retries = 2
	d := NewHTTPDownloader(cfg, srv.Client())

	got, err := d.Download(context.Background(), srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, body, got.Data)
	assert.Equal(t, int64(3), hits.Load())
}

func TestHTTPDownloader_EnforcesMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()

	cfg := noPacing()
	cfg.MaxBytes = 1024
	d := NewHTTPDownloader(cfg, srv.Client())

	_, err := d.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, errTooLarge)
}

func TestHTTPDownloader_RejectsNonHTTP(t *testing.T) {
	d := NewHTTPDownloader(noPacing(), nil)
	_, err := d.Download(context.Background(), "ftp://example.com/a.jpg")
	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, errScheme)
}

func TestHTTPDownloader_GoogleDriveInterstitial(t *testing.T) {
	body := pngBytes(t, 2, 2)
	var confirmed atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body>Google Drive can't scan this file.
				<a id="uc-download-link" href="/uc?export=download&amp;confirm=AbC1&amp;id=FILE123">Download anyway</a>
				</body></html>`))
			return
		}
		confirmed.Store(true)
		assert.Equal(t, "FILE123", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	base, _ := url.Parse(srv.URL)
	drive := &GoogleDrive{
		Hosts:           []string{base.Host},
		DownloadBase:    srv.URL + "/uc",
		UserContentBase: srv.URL + "/download",
	}
	d := NewHTTPDownloader(noPacing(), srv.Client(), drive)

	got, err := d.Download(context.Background(), srv.URL+"/file/d/FILE123/view?usp=sharing")
	require.NoError(t, err)
	assert.True(t, confirmed.Load())
	assert.Equal(t, body, got.Data)
}

func TestGoogleDrive_FormInterstitial(t *testing.T) {
	page := []byte(`<form id="download-form" action="https://drive.usercontent.google.com/download" method="get">
		<input type="hidden" name="id" value="XYZ">
		<input type="hidden" name="export" value="download">
		<input type="hidden" name="confirm" value="t">
		<input type="hidden" name="uuid" value="u-1">
	</form>`)
	pageURL, _ := url.Parse("https://drive.google.com/uc?export=download&id=XYZ")

	next, ok := NewGoogleDrive().ConfirmURL(page, pageURL)
	require.True(t, ok)

	u, err := url.Parse(next)
	require.NoError(t, err)
	assert.Equal(t, "drive.usercontent.google.com", u.Host)
	assert.Equal(t, "XYZ", u.Query().Get("id"))
	assert.Equal(t, "u-1", u.Query().Get("uuid"))
}

func TestGoogleDrive_Candidates(t *testing.T) {
	g := NewGoogleDrive()
	for _, raw := range []string{
		"https://drive.google.com/file/d/abc_DEF-1/view?usp=sharing",
		"https://drive.google.com/open?id=abc_DEF-1",
	} {
		u, _ := url.Parse(raw)
		require.True(t, g.Match(u), raw)
		c := g.Candidates(u)
		require.Len(t, c, 2, raw)
		assert.Equal(t, "https://drive.google.com/uc?export=download&id=abc_DEF-1", c[0])
		assert.True(t, strings.HasPrefix(c[1], "https://drive.usercontent.google.com/download?"))
		assert.Contains(t, c[1], "confirm=t")
	}
}

func TestDropbox_Candidates(t *testing.T) {
	u, _ := url.Parse("https://www.dropbox.com/scl/fi/abc/photo.jpg?rlkey=k1&dl=0")
	d := NewDropbox()
	require.True(t, d.Match(u))

	c := d.Candidates(u)
	require.Len(t, c, 2)

	first, _ := url.Parse(c[0])
	assert.Equal(t, "1", first.Query().Get("dl"))
	assert.Equal(t, "k1", first.Query().Get("rlkey"))

	second, _ := url.Parse(c[1])
	assert.Equal(t, "dl.dropboxusercontent.com", second.Host)
	assert.Equal(t, "/scl/fi/abc/photo.jpg", second.Path)
	assert.Empty(t, second.Query().Get("dl"))
}

// =============================================================================
// Processing
// =============================================================================

func TestProcessConfig_ChooseFormat(t *testing.T) {
	cfg := ProcessConfig{SmallBytes: 100, LargeBytes: 1000}
	assert.Equal(t, FormatWebP, cfg.ChooseFormat(50))
	assert.Equal(t, FormatAVIF, cfg.ChooseFormat(500))
	assert.Equal(t, FormatJPEG, cfg.ChooseFormat(5000))
}

func TestProcessImage_AVIFFailureFallsBackToWebP(t *testing.T) {
	src := pngBytes(t, 10, 10)
	codec := &fakeCodec{fail: map[Format]error{FormatAVIF: errors.New("encoder crashed")}}
	cfg := ProcessConfig{MaxWidth: 1200, Quality: 60, SmallBytes: 0, LargeBytes: 1 << 30}

	out, err := processImage(context.Background(), codec, cfg, "u", src, FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, FormatWebP, out.format)
	assert.True(t, out.compressed)
	assert.Equal(t, []Format{FormatAVIF, FormatWebP}, codec.used)
}

func TestProcessImage_EncoderFailureKeepsOriginal(t *testing.T) {
	src := pngBytes(t, 10, 10)
	codec := &fakeCodec{fail: map[Format]error{FormatWebP: errors.New("nope")}}
	cfg := ProcessConfig{MaxWidth: 1200, SmallBytes: 1 << 30}

	out, err := processImage(context.Background(), codec, cfg, "u", src, FormatPNG)
	require.NoError(t, err)
	assert.False(t, out.compressed)
	assert.Equal(t, FormatPNG, out.format)
	assert.Equal(t, src, out.data)
}

func TestProcessImage_UndecodableIsDropped(t *testing.T) {
	_, err := processImage(context.Background(), &fakeCodec{}, ProcessConfig{}, "u", []byte("\x89PNG\r\n\x1a\ngarbage"), FormatPNG)
	var perr *ProcessError
	assert.ErrorAs(t, err, &perr)

	_, err = processImage(context.Background(), nil, ProcessConfig{}, "u", []byte("hello"), FormatUnknown)
	assert.ErrorAs(t, err, &perr)
}

// headerOnlyPNG returns a valid PNG signature and IHDR declaring w x h
// pixels followed by a tiny image body.
func headerOnlyPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	src := pngBytes(t, 1, 1)
	binary.BigEndian.PutUint32(src[16:20], w)
	binary.BigEndian.PutUint32(src[20:24], h)
	binary.BigEndian.PutUint32(src[29:33], crc32.ChecksumIEEE(src[12:29]))
	return src
}

func TestProcessImage_OversizedDimensionsAreDropped(t *testing.T) {
	src := headerOnlyPNG(t, 60000, 60000)
	require.Less(t, len(src), 2048)

	codec := &fakeCodec{}
	_, err := processImage(context.Background(), codec, DefaultConfig().Process, "u", src, Sniff(src))

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, errTooManyPixels)
	assert.Empty(t, codec.used)
}

func TestProcessImage_PixelLimitDisabled(t *testing.T) {
	src := pngBytes(t, 20, 20)
	cfg := ProcessConfig{MaxWidth: 1200, SmallBytes: 1 << 30, MaxPixels: 0}

	out, err := processImage(context.Background(), &fakeCodec{}, cfg, "u", src, FormatPNG)
	require.NoError(t, err)
	assert.True(t, out.compressed)

	cfg.MaxPixels = 399
	_, err = processImage(context.Background(), &fakeCodec{}, cfg, "u", src, FormatPNG)
	assert.ErrorIs(t, err, errTooManyPixels)
}

func TestResize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2400, 1000))
	out := resize(img, 1200)
	assert.Equal(t, 1200, out.Bounds().Dx())
	assert.Equal(t, 500, out.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 300, 300))
	assert.Same(t, small, resize(small, 1200))
}

// =============================================================================
// Pipeline
// =============================================================================

type stubDownloader struct {
	inflight atomic.Int64
	maxSeen  atomic.Int64
	body     []byte
	fail     map[string]error
}

func (d *stubDownloader) Download(_ context.Context, u string) (*Downloaded, error) {
	cur := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		prev := d.maxSeen.Load()
		if cur <= prev || d.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	if err := d.fail[u]; err != nil {
		return nil, err
	}
	return &Downloaded{URL: u, Data: d.body}, nil
}

func TestPipeline_DownloadConcurrencyBound(t *testing.T) {
	const n, k = 60, 4
	dl := &stubDownloader{body: pngBytes(t, 3, 3)}
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.DownloadConcurrency = k
	p := NewPipeline(cfg, dl, nil, store)

	urls := make([]string, n)
	for i := range urls {
		urls[i] = "https://img.test/" + uuid.NewString() + ".png"
	}
	tracker := &keyLog{}

	assets, err := p.Process(context.Background(), Request{URLs: urls, Folder: FolderLot, SellerPublicID: "S1", Tracker: tracker})
	require.NoError(t, err)
	assert.Len(t, assets, n)
	assert.LessOrEqual(t, dl.maxSeen.Load(), int64(k))
	assert.Len(t, tracker.keys, 2*n)
}

func TestPipeline_NilCodecStoresOriginalPair(t *testing.T) {
	body := pngBytes(t, 5, 4)
	store := newMemStore()
	p := NewPipeline(DefaultConfig(), &stubDownloader{body: body}, nil, store)
	tracker := &keyLog{}

	assets, err := p.Process(context.Background(), Request{
		URLs:           []string{"https://img.test/b.png", " https://img.test/a.png", "https://img.test/b.png", ""},
		Folder:         FolderCatalog,
		SellerPublicID: "S9",
		Tracker:        tracker,
	})
	require.NoError(t, err)
	require.Len(t, assets, 2)

	for i, a := range assets {
		assert.Equal(t, i, a.SortOrder)
		assert.False(t, a.Compressed)
		assert.Equal(t, FormatPNG, a.Format)
		assert.Equal(t, 5, a.Width)
		assert.True(t, strings.HasPrefix(a.Key, "Images/Catalog/S9/"))
		assert.True(t, strings.HasSuffix(a.OriginalKey, "_original.png"))
		assert.Equal(t, "https://cdn.test/"+a.Key, a.URL)
	}
	assert.Equal(t, "https://img.test/b.png", assets[0].SourceURL)
	assert.Equal(t, 4, store.len())
}

func TestPipeline_DownloadFailureIsFatal(t *testing.T) {
	store := newMemStore()
	missing := &DownloadError{URL: "https://img.test/404.png", StatusCode: 404, Attempts: 1}
	dl := &stubDownloader{body: pngBytes(t, 2, 2), fail: map[string]error{"https://img.test/404.png": missing}}
	p := NewPipeline(DefaultConfig(), dl, nil, store)

	_, err := p.Process(context.Background(), Request{
		URLs:    []string{"https://img.test/ok.png", "https://img.test/404.png"},
		Folder:  FolderAuction,
		Tracker: &keyLog{},
	})
	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 404, derr.StatusCode)
	assert.Equal(t, 0, store.len(), "no uploads happen before every download succeeds")
}

func TestPipeline_OriginalUploadFailureRemovesCompressed(t *testing.T) {
	store := newMemStore()
	store.failPut = func(key string) error {
		if strings.Contains(key, "/originals/") {
			return errors.New("bucket unavailable")
		}
		return nil
	}
	p := NewPipeline(DefaultConfig(), &stubDownloader{body: pngBytes(t, 2, 2)}, nil, store)

	assets, err := p.Process(context.Background(), Request{
		URLs:    []string{"https://img.test/x.png"},
		Folder:  FolderLot,
		Tracker: &keyLog{},
	})
	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.Equal(t, 0, store.len())
}

func TestPipeline_DropsUndecodableImages(t *testing.T) {
	store := newMemStore()
	dl := &stubDownloader{body: []byte("<html>not an image</html>")}
	p := NewPipeline(DefaultConfig(), dl, &fakeCodec{}, store)

	assets, err := p.Process(context.Background(), Request{URLs: []string{"https://img.test/x"}, Tracker: &keyLog{}})
	require.NoError(t, err)
	assert.Empty(t, assets)
	assert.Equal(t, 0, store.len())
}

func TestPersistBatches(t *testing.T) {
	assets := make([]Asset, 7)
	for i := range assets {
		assets[i].ID = uuid.New()
	}
	var sizes []int
	tracker := &keyLog{}

	err := PersistBatches(context.Background(), assets, 3, tracker, func(_ context.Context, batch []Asset) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, tracker.ids, 7)

	boom := errors.New("insert failed")
	err = PersistBatches(context.Background(), assets, 5, &keyLog{}, func(context.Context, []Asset) error { return boom })
	assert.ErrorIs(t, err, boom)
}
