package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"booth/src/config"
	"booth/src/models"

	"github.com/google/uuid"
)

// ErrPipelineRunning means Run was called for a session that already has an
// attempt in flight. A retry after failure is fine, a concurrent one is not.
var ErrPipelineRunning = errors.New("upload pipeline already running for session")

// ShareResult is the completed session's shareable shape. The share id is
// the session id itself, the viewer resolves the rest from storage.
type ShareResult struct {
	ShareID       string   `json:"share_id"`
	FinalImageUrl string   `json:"final_image_url"`
	PhotosUrls    []string `json:"photos_urls"`
	VideoUrl      *string  `json:"video_url,omitempty"`
}

// Uploader is what the pipeline needs from the upload layer. Satisfied by
// RetryUploader.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Mirror is the fire-and-forget local backup written alongside the
// uploads. Satisfied by LocalMirror.
type Mirror interface {
	Enabled() bool
	Save(sessionID string, composite []byte, photos [][]byte, animation []byte) string
	SaveAnimation(dir string, animation []byte)
}

// AssetPipeline persists a finished capture set: composite upload is
// critical, individual photos and the animation are best-effort, the local
// mirror is fire-and-forget, and finalize flips the session to completed.
type AssetPipeline struct {
	Uploader  Uploader
	Store     SessionStore
	Mirror    Mirror
	GifBudget int

	mu       sync.Mutex
	inflight map[uuid.UUID]bool
	// mirrorWg tracks in-flight mirror writes. Run never waits on it,
	// tests do.
	mirrorWg sync.WaitGroup
}

func NewAssetPipeline(uploader Uploader, store SessionStore, mirror Mirror) *AssetPipeline {
	return &AssetPipeline{
		Uploader:  uploader,
		Store:     store,
		Mirror:    mirror,
		GifBudget: config.GifSizeBudgetBytes,
		inflight:  make(map[uuid.UUID]bool),
	}
}

func (p *AssetPipeline) begin(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[id] {
		return false
	}
	p.inflight[id] = true
	return true
}

func (p *AssetPipeline) end(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// Run executes one full pipeline attempt for the session. Re-running after
// a failure is safe: every storage object gets a fresh unique key and
// finalize is a conditional upsert keyed on the session id.
func (p *AssetPipeline) Run(ctx context.Context, session *models.Session, composite []byte, photos [][]byte) (*ShareResult, error) {
	if len(composite) == 0 {
		return nil, errors.New("nothing to upload")
	}
	if !p.begin(session.ID) {
		return nil, ErrPipelineRunning
	}
	defer p.end(session.ID)

	sid := session.ID.String()

	// The mirror runs concurrently with the uploads and never reports
	// failure. The animation is handed over once generated.
	animCh := make(chan []byte, 1)
	if p.Mirror.Enabled() {
		p.mirrorWg.Add(1)
		go func() {
			defer p.mirrorWg.Done()
			dir := p.Mirror.Save(sid, composite, photos, nil)
			if anim := <-animCh; dir != "" {
				p.Mirror.SaveAnimation(dir, anim)
			}
			if dir != "" {
				log.Printf("[pipeline] Local mirror written to %s\n", dir)
			}
		}()
	} else {
		close(animCh)
	}

	finalURL, err := p.Uploader.Upload(ctx, objectKey(sid, "composite", "jpg"), composite, "image/jpeg")
	if err != nil {
		if p.Mirror.Enabled() {
			animCh <- nil
		}
		log.Printf("[pipeline] Composite upload failed for session %s: %s\n", sid, err.Error())
		return nil, err
	}

	photosUrls := make([]string, 0, len(photos))
	for i, photo := range photos {
		if len(photo) == 0 {
			continue
		}
		url, err := p.Uploader.Upload(ctx, objectKey(sid, fmt.Sprintf("photo-%d", i+1), "jpg"), photo, "image/jpeg")
		if err != nil {
			// Non-critical: the photo is omitted from the final list.
			log.Printf("[pipeline] Photo %d upload failed for session %s: %s\n", i+1, sid, err.Error())
			continue
		}
		photosUrls = append(photosUrls, url)
	}

	var videoUrl *string
	anim := p.generateAnimation(photos)
	if p.Mirror.Enabled() {
		animCh <- anim
	}
	if len(anim) > 0 {
		url, err := p.Uploader.Upload(ctx, objectKey(sid, "animation", "gif"), anim, "image/gif")
		if err != nil {
			log.Printf("[pipeline] Animation upload failed for session %s: %s\n", sid, err.Error())
		} else {
			videoUrl = &url
		}
	}

	if err := p.Store.FinalizeSession(ctx, session.ID, finalURL, photosUrls, videoUrl); err != nil {
		log.Printf("[pipeline] Finalize failed for session %s: %s\n", sid, err.Error())
		return nil, err
	}

	return &ShareResult{
		ShareID:       sid,
		FinalImageUrl: finalURL,
		PhotosUrls:    photosUrls,
		VideoUrl:      videoUrl,
	}, nil
}

func (p *AssetPipeline) generateAnimation(photos [][]byte) []byte {
	available := 0
	for _, photo := range photos {
		if len(photo) > 0 {
			available++
		}
	}
	if available < 2 {
		return nil
	}
	anim, err := GenerateGIF(photos, p.GifBudget)
	if err != nil {
		log.Printf("[pipeline] Animation generation failed: %s\n", err.Error())
		return nil
	}
	return anim
}

// objectKey builds a storage path unique per attempt so retries can never
// overwrite an earlier partial upload.
func objectKey(sessionID, kind, ext string) string {
	return fmt.Sprintf("sessions/%s/%s-%s.%s", sessionID, kind, uuid.New().String(), ext)
}
