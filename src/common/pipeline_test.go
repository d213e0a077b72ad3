package common

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"booth/src/models"
	"booth/src/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keyedTransport fails uploads whose key contains a substring.
type keyedTransport struct {
	mu         sync.Mutex
	failSubstr string
	keys       []string
}

func (k *keyedTransport) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, key)
	if k.failSubstr != "" && strings.Contains(key, k.failSubstr) {
		return "", errors.New("transport down")
	}
	return "https://cdn.example.com/" + key, nil
}

func pipelineFixture(t *testing.T, transport Uploader, mirror Mirror) (*AssetPipeline, *fakeStore, *models.Session) {
	t.Helper()
	store := newFakeStore()
	session := &models.Session{ID: uuid.New(), BoothID: 1, Status: types.SESSION_COMPOSITING}
	store.sessions[session.ID] = session
	p := NewAssetPipeline(transport, store, mirror)
	return p, store, session
}

func capturedPhotos(t *testing.T) [][]byte {
	t.Helper()
	return [][]byte{
		testPhoto(t, 200, 150, color.RGBA{R: 255, A: 255}),
		testPhoto(t, 200, 150, color.RGBA{G: 255, A: 255}),
		testPhoto(t, 200, 150, color.RGBA{B: 255, A: 255}),
	}
}

func TestPipelineUploadsAndFinalizes(t *testing.T) {
	transport := &keyedTransport{}
	p, store, session := pipelineFixture(t, transport, &LocalMirror{})
	photos := capturedPhotos(t)

	result, err := p.Run(context.Background(), session, []byte("composite"), photos)
	require.NoError(t, err)

	assert.Equal(t, session.ID.String(), result.ShareID)
	assert.Contains(t, result.FinalImageUrl, "composite-")
	assert.Len(t, result.PhotosUrls, 3)
	require.NotNil(t, result.VideoUrl)
	assert.Contains(t, *result.VideoUrl, "animation-")

	got, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SESSION_COMPLETED, got.Status)
}

func TestPipelineCompositeUploadFailureIsFatal(t *testing.T) {
	transport := &keyedTransport{failSubstr: "composite"}
	p, store, session := pipelineFixture(t, transport, &LocalMirror{})

	_, err := p.Run(context.Background(), session, []byte("composite"), capturedPhotos(t))
	assert.Error(t, err)
	assert.Empty(t, store.finalized)
}

func TestPipelinePhotoUploadFailureIsNotFatal(t *testing.T) {
	transport := &keyedTransport{failSubstr: "photo-2"}
	p, _, session := pipelineFixture(t, transport, &LocalMirror{})

	result, err := p.Run(context.Background(), session, []byte("composite"), capturedPhotos(t))
	require.NoError(t, err)
	assert.Len(t, result.PhotosUrls, 2)
}

func TestPipelineSkipsAnimationForSinglePhoto(t *testing.T) {
	transport := &keyedTransport{}
	p, _, session := pipelineFixture(t, transport, &LocalMirror{})
	photos := [][]byte{testPhoto(t, 200, 150, color.RGBA{R: 255, A: 255})}

	result, err := p.Run(context.Background(), session, []byte("composite"), photos)
	require.NoError(t, err)
	assert.Nil(t, result.VideoUrl)
}

func TestPipelineRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	transport := &blockingTransport{release: release}
	p, _, session := pipelineFixture(t, transport, &LocalMirror{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background(), session, []byte("composite"), nil)
	}()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.inflight[session.ID]
	}, time.Second, 5*time.Millisecond)

	_, err := p.Run(context.Background(), session, []byte("composite"), nil)
	assert.ErrorIs(t, err, ErrPipelineRunning)

	close(release)
	<-done

	// With the first attempt finished a rerun is allowed again.
	_, err = p.Run(context.Background(), session, []byte("composite"), nil)
	assert.NoError(t, err)
}

func TestPipelineMirrorWritesSessionFolder(t *testing.T) {
	transport := &keyedTransport{}
	mirror := &LocalMirror{BaseDir: t.TempDir()}
	p, _, session := pipelineFixture(t, transport, mirror)

	_, err := p.Run(context.Background(), session, []byte("composite"), capturedPhotos(t))
	require.NoError(t, err)
	p.mirrorWg.Wait()

	entries, err := os.ReadDir(mirror.BaseDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	dir := path.Join(mirror.BaseDir, entries[0].Name())
	for _, name := range []string{"composite.jpg", "photo-1.jpg", "photo-2.jpg", "photo-3.jpg", "animation.gif"} {
		_, err := os.Stat(path.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestPipelineMirrorFailureDoesNotFailRun(t *testing.T) {
	transport := &keyedTransport{}
	mirror := &LocalMirror{BaseDir: "/proc/definitely-not-writable/booth"}
	p, _, session := pipelineFixture(t, transport, mirror)

	result, err := p.Run(context.Background(), session, []byte("composite"), capturedPhotos(t))
	require.NoError(t, err)
	assert.NotNil(t, result)
	p.mirrorWg.Wait()
}

// stuckMirror blocks Save until released, for proving the pipeline does
// not wait on the mirror.
type stuckMirror struct {
	release chan struct{}
}

func (m *stuckMirror) Enabled() bool { return true }

func (m *stuckMirror) Save(sessionID string, composite []byte, photos [][]byte, animation []byte) string {
	<-m.release
	return ""
}

func (m *stuckMirror) SaveAnimation(dir string, animation []byte) {}

func TestPipelineRunDoesNotWaitForMirror(t *testing.T) {
	transport := &keyedTransport{}
	mirror := &stuckMirror{release: make(chan struct{})}
	p, _, session := pipelineFixture(t, transport, mirror)

	result, err := p.Run(context.Background(), session, []byte("composite"), capturedPhotos(t))
	require.NoError(t, err)
	assert.NotNil(t, result)

	close(mirror.release)
	p.mirrorWg.Wait()
}
