package rasterize

import (
	"context"
	"testing"
)

func TestFitzRasterizerRejectsGarbage(t *testing.T) {
	r := NewFitzRasterizer(Config{})

	if _, err := r.PageImages(context.Background(), []byte("definitely not a pdf")); err == nil {
		t.Error("PageImages() expected error for non-PDF bytes")
	}
	if _, err := r.PageImages(context.Background(), nil); err == nil {
		t.Error("PageImages() expected error for empty input")
	}
}

func TestNewFitzRasterizerDefaults(t *testing.T) {
	r := NewFitzRasterizer(Config{})
	if r.dpi != DefaultDPI {
		t.Errorf("dpi = %v, want %v", r.dpi, DefaultDPI)
	}

	r = NewFitzRasterizer(Config{DPI: 300})
	if r.dpi != 300 {
		t.Errorf("dpi = %v, want 300", r.dpi)
	}
}
