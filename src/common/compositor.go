package common

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"

	"booth/src/models"
	"booth/src/types"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
)

const compositeJpegQuality = 95

// Composite renders captured photos into the frame's slot geometry and
// returns the encoded strip. Deterministic for a given frame, overlay and
// photo set. photos are ordered by slot index; a missing or undecodable
// photo leaves its slot empty rather than failing the whole strip, and a
// nil overlay is tolerated the same way.
func Composite(frame *models.Frame, overlay image.Image, photos [][]byte) ([]byte, error) {
	if frame == nil || frame.CanvasWidth < 1 || frame.CanvasHeight < 1 {
		return nil, errors.New("frame has no canvas geometry")
	}
	if len(frame.Slots) == 0 {
		return nil, errors.New("frame has no slots")
	}
	w, h := frame.CanvasWidth, frame.CanvasHeight
	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	drawSlotLayer(dc, frame, photos, types.SLOT_LAYER_BELOW)
	if overlay != nil {
		scaled := scaleImage(overlay, w, h)
		dc.DrawImage(scaled, 0, 0)
	}
	drawSlotLayer(dc, frame, photos, types.SLOT_LAYER_ABOVE)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: compositeJpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawSlotLayer(dc *gg.Context, frame *models.Frame, photos [][]byte, layer string) {
	for i, slot := range frame.Slots {
		slotLayer := slot.Layer
		if slotLayer == "" {
			slotLayer = types.SLOT_LAYER_BELOW
		}
		if slotLayer != layer {
			continue
		}
		if i >= len(photos) || len(photos[i]) == 0 {
			continue
		}
		src, _, err := image.Decode(bytes.NewReader(photos[i]))
		if err != nil {
			log.Printf("[compositor] Could not decode photo %d: %s\n", i, err.Error())
			continue
		}
		drawSlot(dc, frame, slot, src)
	}
}

func drawSlot(dc *gg.Context, frame *models.Frame, slot types.PhotoSlot, src image.Image) {
	// Slot coordinates are on a 0..1000 grid.
	sx := slot.X * frame.CanvasWidth / 1000
	sy := slot.Y * frame.CanvasHeight / 1000
	sw := slot.Width * frame.CanvasWidth / 1000
	sh := slot.Height * frame.CanvasHeight / 1000
	if sw < 1 || sh < 1 {
		return
	}
	filled := centerCropScale(src, sw, sh)
	if slot.Rotation != 0 {
		cx := float64(sx) + float64(sw)/2
		cy := float64(sy) + float64(sh)/2
		dc.Push()
		dc.RotateAbout(gg.Radians(slot.Rotation), cx, cy)
		dc.DrawImage(filled, sx, sy)
		dc.Pop()
		return
	}
	dc.DrawImage(filled, sx, sy)
}

// centerCropScale crops the source to the target aspect ratio about its
// center, never letterboxing, then scales the crop window to tw x th.
func centerCropScale(src image.Image, tw, th int) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	cropW := sw
	cropH := sw * th / tw
	if cropH > sh {
		cropH = sh
		cropW = sh * tw / th
	}
	ox := b.Min.X + (sw-cropW)/2
	oy := b.Min.Y + (sh-cropH)/2
	crop := image.Rect(ox, oy, ox+cropW, oy+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, xdraw.Over, nil)
	return dst
}

func scaleImage(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
