package zip

import (
	stdzip "archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveAssetsRoundTrip(t *testing.T) {
	assets := []Asset{
		{Filename: "portrait_01.png", MIME: "image/png", Data: []byte("first")},
		{Filename: "portrait_02.png", MIME: "image/png", Data: []byte("second")},
	}

	raw := ArchiveAssets(assets)
	if len(raw) == 0 {
		t.Fatal("empty archive")
	}

	zr, err := stdzip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != len(assets) {
		t.Fatalf("expected %d entries, got %d", len(assets), len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != assets[i].Filename {
			t.Fatalf("entry %d: expected %q, got %q", i, assets[i].Filename, f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry: %v", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry: %v", err)
		}
		if !bytes.Equal(data, assets[i].Data) {
			t.Fatalf("entry %d: payload mismatch", i)
		}
	}
}

func TestArchiveAssetsEmpty(t *testing.T) {
	raw := ArchiveAssets(nil)
	if _, err := stdzip.NewReader(bytes.NewReader(raw), int64(len(raw))); err != nil {
		t.Fatalf("empty archive should still be valid: %v", err)
	}
}
