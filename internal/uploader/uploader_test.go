package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/internal/clock"
	"github.com/smallbiznis/pixora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStorage scripts per-path failures and records calls.
type fakeStorage struct {
	mu            sync.Mutex
	putCalls      int
	ensureCalls   int
	ensureErr     error
	objects       map[string][]byte
	failAllPuts   bool
	putErr        error
	failPerUpload int // first N puts of every upload fail (matched by counting)
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) EnsureBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failAllPuts {
		if f.putErr != nil {
			return f.putErr
		}
		return errors.New("storage unavailable")
	}
	if f.failPerUpload > 0 {
		f.failPerUpload--
		return errors.New("transient storage error")
	}
	f.objects[bucket+"/"+path] = data
	return nil
}

func (f *fakeStorage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("https://cdn.example.test/%s/%s", bucket, path)
}

func (f *fakeStorage) stats() (puts, ensures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls, f.ensureCalls
}

func testPipelineConfig() config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.UploadBackoffBase = time.Microsecond
	cfg.UploadBackoffCap = 10 * time.Microsecond
	cfg.MinArtifactBytes = 64
	return cfg
}

func newTestUploader(t *testing.T, store *fakeStorage, cfg config.PipelineConfig) Uploader {
	t.Helper()

	appCfg := config.Load()
	appCfg.Storage.Bucket = "artifacts-test"

	return NewUploader(UploaderParam{
		Storage: store,
		Config:  appCfg,
		Holder:  config.NewStaticPipelineConfigHolder(cfg),
		Clock:   clock.NewFakeClock(time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)),
		Log:     zap.NewNop(),
	})
}

func validPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for x := 0; x < 24; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return node
}

func TestUploadSuccessReturnsURLAndSize(t *testing.T) {
	store := newFakeStorage()
	u := newTestUploader(t, store, testPipelineConfig())
	data := validPNG(t)

	got, err := u.Upload(context.Background(), RawArtifact{
		Ordinal:     1,
		Data:        data,
		ContentType: "image/png",
		TimingMs:    420,
	}, mustNode(t).Generate(), "gen_abc")
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), got.ByteSize)
	assert.Contains(t, got.URL, "https://cdn.example.test/artifacts-test/")
	assert.Contains(t, got.FileName, "/2026/08/")
	assert.Contains(t, got.FileName, ".png")
	assert.Equal(t, int64(420), got.TimingMs)

	puts, ensures := store.stats()
	assert.Equal(t, 1, puts)
	assert.Equal(t, 1, ensures)
}

func TestUploadRetriesThenSucceeds(t *testing.T) {
	store := newFakeStorage()
	store.failPerUpload = 4 // fail attempts 1-4, succeed on 5
	u := newTestUploader(t, store, testPipelineConfig())

	got, err := u.Upload(context.Background(), RawArtifact{
		Ordinal:     0,
		Data:        validPNG(t),
		ContentType: "image/png",
	}, mustNode(t).Generate(), "gen_retry")
	require.NoError(t, err)
	require.NotNil(t, got)

	puts, ensures := store.stats()
	assert.Equal(t, 5, puts)
	// Bucket check happens once per upload, not once per attempt.
	assert.Equal(t, 1, ensures)
}

func TestUploadExhaustsRetries(t *testing.T) {
	store := newFakeStorage()
	store.failAllPuts = true
	cause := errors.New("disk on fire")
	store.putErr = cause
	u := newTestUploader(t, store, testPipelineConfig())

	_, err := u.Upload(context.Background(), RawArtifact{
		Ordinal:     2,
		Data:        validPNG(t),
		ContentType: "image/png",
	}, mustNode(t).Generate(), "gen_fail")

	require.ErrorIs(t, err, ErrUploadFailed)
	require.ErrorIs(t, err, cause)

	var uploadErr *UploadError
	require.True(t, errors.As(err, &uploadErr))
	assert.Equal(t, 2, uploadErr.Ordinal)
	assert.Equal(t, 5, uploadErr.Attempts)

	puts, _ := store.stats()
	assert.Equal(t, 5, puts)
}

func TestUploadRejectsCorruptPayloadsBeforeNetwork(t *testing.T) {
	store := newFakeStorage()
	cfg := testPipelineConfig()
	u := newTestUploader(t, store, cfg)
	tenantID := mustNode(t).Generate()

	tests := []struct {
		name string
		art  RawArtifact
	}{
		{"empty payload", RawArtifact{ContentType: "image/png"}},
		{"html error page", RawArtifact{ContentType: "image/png", Data: []byte("<!DOCTYPE html><html><body>502</body></html>")}},
		{"xml error document", RawArtifact{ContentType: "image/png", Data: []byte("<?xml version=\"1.0\"?><Error><Code>SlowDown</Code></Error>")}},
		{"not an image", RawArtifact{ContentType: "image/png", Data: bytes.Repeat([]byte{0xAB}, 256)}},
		{"blank caption", RawArtifact{ContentType: "text/plain", Data: []byte("   \n ")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(context.Background(), tt.art, tenantID, "gen_bad")
			require.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}

	puts, ensures := store.stats()
	assert.Zero(t, puts, "no network attempt for rejected payloads")
	assert.Zero(t, ensures)
}

func TestUploadRejectsImplausiblySmallImage(t *testing.T) {
	store := newFakeStorage()
	cfg := testPipelineConfig()
	cfg.MinArtifactBytes = 1 << 20 // larger than any test PNG
	u := newTestUploader(t, store, cfg)

	_, err := u.Upload(context.Background(), RawArtifact{
		Ordinal:     0,
		Data:        validPNG(t),
		ContentType: "image/png",
	}, mustNode(t).Generate(), "gen_small")
	require.ErrorIs(t, err, ErrInvalidArtifact)
	assert.Contains(t, err.Error(), "below plausible minimum")
}

func TestUploadAcceptsCaptionText(t *testing.T) {
	store := newFakeStorage()
	u := newTestUploader(t, store, testPipelineConfig())

	got, err := u.Upload(context.Background(), RawArtifact{
		Ordinal:     0,
		Data:        []byte("Fresh roast, every morning."),
		ContentType: "text/plain",
	}, mustNode(t).Generate(), "cap_ok")
	require.NoError(t, err)
	assert.Contains(t, got.FileName, ".txt")
}
