package common

import (
	"bytes"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGIFNeedsTwoPhotos(t *testing.T) {
	_, err := GenerateGIF(nil, 1024*1024)
	assert.ErrorIs(t, err, ErrNotEnoughPhotos)

	one := [][]byte{testPhoto(t, 100, 100, color.RGBA{R: 255, A: 255})}
	_, err = GenerateGIF(one, 1024*1024)
	assert.ErrorIs(t, err, ErrNotEnoughPhotos)

	// Undecodable photos don't count toward the minimum.
	padded := [][]byte{one[0], []byte("junk")}
	_, err = GenerateGIF(padded, 1024*1024)
	assert.ErrorIs(t, err, ErrNotEnoughPhotos)
}

func TestGenerateGIFLoopsAllFrames(t *testing.T) {
	photos := [][]byte{
		testPhoto(t, 320, 240, color.RGBA{R: 255, A: 255}),
		testPhoto(t, 320, 240, color.RGBA{G: 255, A: 255}),
		testPhoto(t, 320, 240, color.RGBA{B: 255, A: 255}),
	}
	out, err := GenerateGIF(photos, 4*1024*1024)
	require.NoError(t, err)

	anim, err := gif.DecodeAll(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, anim.Image, 3)
	assert.Equal(t, 0, anim.LoopCount)
}

func TestGenerateGIFDegradesUnderTightBudget(t *testing.T) {
	photos := [][]byte{
		testPhoto(t, 640, 480, color.RGBA{R: 200, G: 100, A: 255}),
		testPhoto(t, 640, 480, color.RGBA{G: 200, B: 100, A: 255}),
	}
	// A budget nothing can meet still yields the smallest attempt.
	out, err := GenerateGIF(photos, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	anim, err := gif.DecodeAll(bytes.NewReader(out))
	require.NoError(t, err)
	smallest := gifWidths[len(gifWidths)-1]
	assert.Equal(t, smallest, anim.Image[0].Bounds().Dx())
}
