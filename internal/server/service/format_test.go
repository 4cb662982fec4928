package service

import (
	"fmt"
	"math"
	"testing"

	"cloudprime/internal/server/database"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{-5, "0 B"},
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
		{2048 * 1024 * 1024 * 1024, "2048.00 GB"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.bytes), func(t *testing.T) {
			if got := FormatFileSize(tt.bytes); got != tt.expected {
				t.Errorf("FormatFileSize(%d) = %q, want %q", tt.bytes, got, tt.expected)
			}
		})
	}
}

func TestFileTypeFor(t *testing.T) {
	tests := map[string]string{
		"cat.PNG":        database.FileTypeImage,
		"clip.mkv":       database.FileTypeVideo,
		"report.pdf":     database.FileTypeDocument,
		"notes.txt":      database.FileTypeDocument,
		"archive.tar.gz": database.FileTypeOther,
		"README":         database.FileTypeOther,
	}
	for name, expected := range tests {
		if got := FileTypeFor(name); got != expected {
			t.Errorf("FileTypeFor(%q) = %q, want %q", name, got, expected)
		}
	}
}

func TestUsagePercentage(t *testing.T) {
	tests := []struct {
		used, limit, expected int
	}{
		{0, 100, 0},
		{25, 100, 25},
		{1, 3, 33},
		{2, 3, 67},
		{150, 100, 150},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := usagePercentage(tt.used, tt.limit); got != tt.expected {
			t.Errorf("usagePercentage(%d, %d) = %d, want %d", tt.used, tt.limit, got, tt.expected)
		}
	}
}

func TestPageRequestNormalize(t *testing.T) {
	tests := []struct {
		in       PageRequest
		expected PageRequest
	}{
		{PageRequest{}, PageRequest{Page: 1, Limit: 10}},
		{PageRequest{Page: -3, Limit: 500}, PageRequest{Page: 1, Limit: 100}},
		{PageRequest{Page: 4, Limit: 25}, PageRequest{Page: 4, Limit: 25}},
	}
	for _, tt := range tests {
		if got := tt.in.normalize(); got != tt.expected {
			t.Errorf("%+v.normalize() = %+v, want %+v", tt.in, got, tt.expected)
		}
	}

	if w := (PageRequest{Page: 3, Limit: 20}).window(); w.Offset != 40 || w.Limit != 20 {
		t.Errorf("window() = %+v", w)
	}
}

func TestPageRequestHugePage(t *testing.T) {
	for _, limit := range []int{0, 10, maxPageLimit, 1000} {
		p := PageRequest{Page: math.MaxInt / 5, Limit: limit}.normalize()
		if p.Page != maxPage {
			t.Errorf("limit %d: page = %d, want %d", limit, p.Page, maxPage)
		}
		if w := p.window(); w.Offset < 0 {
			t.Errorf("limit %d: negative offset %d", limit, w.Offset)
		}
	}
}
