package ocrclient

import (
	"image"
	"image/color"
	"testing"
)

func TestMeanConfidenceEmpty(t *testing.T) {
	if got := MeanConfidence(nil); got != 0 {
		t.Fatalf("MeanConfidence(nil) = %v, want 0", got)
	}
}

func TestMeanConfidenceArithmeticMean(t *testing.T) {
	blocks := []Block{{Confidence: 0.8}, {Confidence: 0.4}, {Confidence: 1.0}}
	got := MeanConfidence(blocks)
	want := (0.8 + 0.4 + 1.0) / 3
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("MeanConfidence = %v, want %v", got, want)
	}
}

func TestPreprocessResizesLongEdge(t *testing.T) {
	c := New("http://unused", "model", "v1", 100)
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	out := c.Preprocess(src)
	b := out.Bounds()
	if b.Dx() > 100 {
		t.Fatalf("expected longest edge <= 100, got width %d", b.Dx())
	}
}

func TestPreprocessSkipsResizeWhenUnderThreshold(t *testing.T) {
	c := New("http://unused", "model", "v1", 1000)
	src := image.NewRGBA(image.Rect(0, 0, 50, 50))
	out := c.Preprocess(src)
	b := out.Bounds()
	if b.Dx() != 50 || b.Dy() != 50 {
		t.Fatalf("expected unchanged dims, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestBoostContrastClampsRange(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.Set(0, 0, color.RGBA{R: 255, G: 0, B: 128, A: 255})
	out := boostContrast(src, 1.5)
	r, g, b, _ := out.At(0, 0).RGBA()
	if r>>8 > 255 || g>>8 > 255 || b>>8 > 255 {
		t.Fatalf("channel overflow: r=%d g=%d b=%d", r>>8, g>>8, b>>8)
	}
}
