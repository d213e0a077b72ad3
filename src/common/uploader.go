package common

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	awslib "booth/src/lib/aws"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"
)

// Transport uploads one object and returns its public URL. The key is
// caller-supplied and unique per attempt so a retried upload can never
// corrupt an earlier partial write.
type Transport interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3Transport is the primary direct-to-storage path.
type S3Transport struct{}

func (S3Transport) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return awslib.S3UploadObject(ctx, key, data, contentType)
}

// ProxyTransport is the fallback path, posting through the upload-proxy API
// when direct storage access is unreachable from the kiosk network.
type ProxyTransport struct {
	BaseURL string
	Client  *http.Client
}

func NewProxyTransport() *ProxyTransport {
	return &ProxyTransport{
		BaseURL: os.Getenv("UPLOAD_PROXY_URL"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *ProxyTransport) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if t.BaseURL == "" {
		return "", fmt.Errorf("upload proxy not configured")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("key", key); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", key)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/upload", t.BaseURL), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := t.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	rbytes, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload proxy returned %d", res.StatusCode)
	}
	url := gjson.GetBytes(rbytes, "url").String()
	if url == "" {
		return "", fmt.Errorf("upload proxy response missing url")
	}
	return url, nil
}

// RetryUploader tries the primary transport with bounded exponential
// backoff, then the fallback once, returning a single outcome.
type RetryUploader struct {
	Primary   Transport
	Fallback  Transport
	Attempts  int
	BaseDelay time.Duration

	clock clockwork.Clock
}

func NewRetryUploader(primary, fallback Transport, attempts int, baseDelay time.Duration, clock clockwork.Clock) *RetryUploader {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RetryUploader{
		Primary:   primary,
		Fallback:  fallback,
		Attempts:  attempts,
		BaseDelay: baseDelay,
		clock:     clock,
	}
}

func (u *RetryUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	delay := u.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= u.Attempts; attempt++ {
		url, err := u.Primary.Upload(ctx, key, data, contentType)
		if err == nil {
			return url, nil
		}
		lastErr = err
		log.Printf("[uploader] Attempt %d/%d for %s failed: %s\n", attempt, u.Attempts, key, err.Error())
		if attempt < u.Attempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-u.clock.After(delay):
			}
			delay *= 2
		}
	}
	if u.Fallback != nil {
		url, err := u.Fallback.Upload(ctx, key, data, contentType)
		if err == nil {
			log.Printf("[uploader] Fallback transport succeeded for %s\n", key)
			return url, nil
		}
		log.Printf("[uploader] Fallback transport failed for %s: %s\n", key, err.Error())
		lastErr = err
	}
	return "", fmt.Errorf("upload failed for %s: %w", key, lastErr)
}
