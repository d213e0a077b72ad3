package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"booth/src/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yeqown/go-qrcode"

	_ "image/jpeg"
	_ "image/png"
)

// PayQRCode renders the invoice pay URL as a QR image for the kiosk
// screen, so customers scan instead of typing.
func PayQRCode(payURL string) ([]byte, error) {
	qrc, err := qrcode.New(payURL)
	if err != nil {
		log.Printf("Could not generate qrcode: %s\n", err.Error())
		return nil, err
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FetchImage downloads and decodes a remote image, used for frame
// overlay assets.
func FetchImage(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", res.StatusCode, url)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// SignDeviceToken mints the long-lived token a kiosk device presents on
// every request. Minted once through the provision route at install time.
func SignDeviceToken(boothID uint, device string) (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", errors.New("JWT_SECRET is not set")
	}
	claims := types.Claims{
		BoothID: boothID,
		Device:  device,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  fmt.Sprintf("booth:%d", boothID),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
