package maxmind

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeArchive builds a zip file from member name -> raw bytes.
func writeArchive(t *testing.T, members map[string][]byte) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip member: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write zip member: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dataset.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip file: %v", err)
	}
	return path
}

func TestReadArchive_ParsesCSVMembers(t *testing.T) {
	csvData := []byte("network,autonomous_system_number,autonomous_system_organization\n" +
		"10.0.0.0/24,64500,Acme Corp\n" +
		"10.0.1.0/24,64501,\"Widgets, Inc\"\n")

	path := writeArchive(t, map[string][]byte{
		"GeoLite2-ASN-CSV_20260801/GeoLite2-ASN-Blocks-IPv4.csv": csvData,
		"GeoLite2-ASN-CSV_20260801/COPYRIGHT.txt":                []byte("ignored"),
	})

	sources, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("Expected 1 source, got %d", len(sources))
	}

	rows := sources[0].Rows
	// Header row is scanned like any other row; the matcher's exact/substring
	// semantics make it harmless.
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows (header included), got %d", len(rows))
	}
	if rows[1].Network != "10.0.0.0/24" || rows[1].ASN != "64500" || rows[1].Organization != "Acme Corp" {
		t.Errorf("Unexpected row: %+v", rows[1])
	}
	if rows[2].Organization != "Widgets, Inc" {
		t.Errorf("Expected quoted field to parse, got %q", rows[2].Organization)
	}
}

func TestReadArchive_DecodesLatin1Descriptions(t *testing.T) {
	// 0xE9 is é in ISO-8859-1 and an invalid byte sequence in UTF-8.
	csvData := []byte("10.0.0.0/24,64500,Caf\xe9 R\xe9seaux\n")

	path := writeArchive(t, map[string][]byte{"blocks.csv": csvData})

	sources, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("Expected Latin-1 bytes to decode, got %v", err)
	}
	if got := sources[0].Rows[0].Organization; got != "Café Réseaux" {
		t.Errorf("Expected decoded description, got %q", got)
	}
}

func TestReadArchive_SkipsShortRows(t *testing.T) {
	csvData := []byte("10.0.0.0/24,64500,Acme Corp\n" +
		"malformed,line\n" +
		"10.0.1.0/24,64501,Widgets Inc\n")

	path := writeArchive(t, map[string][]byte{"blocks.csv": csvData})

	sources, err := ReadArchive(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(sources[0].Rows) != 2 {
		t.Errorf("Expected short row to be skipped, got %d rows", len(sources[0].Rows))
	}
}

func TestReadArchive_CorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip.zip")
	if err := os.WriteFile(path, []byte("this is an HTML error page, not a zip"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := ReadArchive(path)
	if !errors.Is(err, ErrArchiveCorrupt) {
		t.Errorf("Expected ErrArchiveCorrupt, got %v", err)
	}
}

func TestReadArchive_NoCSVMembers(t *testing.T) {
	path := writeArchive(t, map[string][]byte{"README.txt": []byte("no data here")})

	_, err := ReadArchive(path)
	if !errors.Is(err, ErrArchiveCorrupt) {
		t.Errorf("Expected ErrArchiveCorrupt for csv-less archive, got %v", err)
	}
}
