package common

import (
	"bytes"
	"errors"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"log"
)

var ErrNotEnoughPhotos = errors.New("need at least 2 photos for an animation")

// gifWidths are tried largest first until the encoded animation fits the
// size budget. The smallest successful attempt is kept as a fallback when
// nothing fits.
var gifWidths = []int{600, 480, 360, 280, 200}

const gifFrameDelay = 50 // hundredths of a second

// GenerateGIF builds a looping animation from the captured photos. All
// frames share the aspect ratio of the first photo, later photos are
// center-cropped to it. The result may exceed the budget when even the
// smallest attempt does, degrading is preferred over failing.
func GenerateGIF(photos [][]byte, budgetBytes int) ([]byte, error) {
	if len(photos) < 2 {
		return nil, ErrNotEnoughPhotos
	}
	decoded := make([]image.Image, 0, len(photos))
	for i, p := range photos {
		img, _, err := image.Decode(bytes.NewReader(p))
		if err != nil {
			log.Printf("[gif] Skipping undecodable photo %d: %s\n", i, err.Error())
			continue
		}
		decoded = append(decoded, img)
	}
	if len(decoded) < 2 {
		return nil, ErrNotEnoughPhotos
	}

	b := decoded[0].Bounds()
	var last []byte
	for _, width := range gifWidths {
		height := width * b.Dy() / b.Dx()
		if height < 1 {
			height = 1
		}
		out, err := encodeGIF(decoded, width, height)
		if err != nil {
			log.Printf("[gif] Encode attempt at %dpx failed: %s\n", width, err.Error())
			continue
		}
		last = out
		if len(out) <= budgetBytes {
			return out, nil
		}
	}
	if last == nil {
		return nil, errors.New("could not encode animation")
	}
	log.Printf("[gif] No attempt fit the %d byte budget, keeping smallest (%d bytes)\n", budgetBytes, len(last))
	return last, nil
}

func encodeGIF(frames []image.Image, w, h int) ([]byte, error) {
	anim := &gif.GIF{LoopCount: 0}
	for _, frame := range frames {
		scaled := centerCropScale(frame, w, h)
		paletted := image.NewPaletted(image.Rect(0, 0, w, h), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), scaled, image.Point{})
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, gifFrameDelay)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
