package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOptionsDefaults(t *testing.T) {
	o, err := Options{URL: "http://127.0.0.1:8080/", OutputPath: "/tmp/p.png"}.withDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout != DefaultTimeout {
		t.Errorf("defaults not applied: %+v", o)
	}
}

func TestDashboardPNGValidatesOptions(t *testing.T) {
	if err := DashboardPNG(context.Background(), Options{OutputPath: "x.png"}); !errors.Is(err, errNoURL) {
		t.Errorf("missing URL: got %v", err)
	}
	if err := DashboardPNG(context.Background(), Options{URL: "http://x"}); !errors.Is(err, errNoOutput) {
		t.Errorf("missing output: got %v", err)
	}
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preview.png")
	if err := writeAtomic(path, []byte("png-bytes")); err != nil {
		t.Fatalf("writeAtomic: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "png-bytes" {
		t.Fatalf("read back: %q, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
