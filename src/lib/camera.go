package lib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Camera is the capture capability consumed by the session machine. A
// failing camera is a recoverable condition, never fatal to the machine.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
	Available(ctx context.Context) bool
}

var ErrCameraUnavailable = errors.New("camera unavailable")

// HTTPCamera talks to the kiosk's local camera agent, which exposes a
// snapshot endpoint returning one encoded JPEG per request.
type HTTPCamera struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPCamera() *HTTPCamera {
	return &HTTPCamera{
		BaseURL: os.Getenv("CAMERA_AGENT_URL"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPCamera) Capture(ctx context.Context) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, ErrCameraUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/snapshot", c.BaseURL), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.Client.Do(req)
	if err != nil {
		log.Printf("[camera] Error capturing snapshot: %s\n", err.Error())
		return nil, ErrCameraUnavailable
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.Printf("[camera] Snapshot request returned %d\n", res.StatusCode)
		return nil, ErrCameraUnavailable
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrCameraUnavailable
	}
	return body, nil
}

func (c *HTTPCamera) Available(ctx context.Context) bool {
	if c.BaseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/status", c.BaseURL), nil)
	if err != nil {
		return false
	}
	res, err := c.Client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode == http.StatusOK
}
