package maxmind

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrArchiveCorrupt indicates the downloaded archive could not be opened or
// extracted. Usually the download was truncated or the license key is wrong
// and the endpoint returned an error page instead of a zip.
var ErrArchiveCorrupt = errors.New("dataset archive unreadable")

// Row is one parsed dataset line: a CIDR network, the owning ASN (kept as a
// string, never parsed numerically), and the organization description.
type Row struct {
	Network      string
	ASN          string
	Organization string
}

// Source is one CSV file extracted from the archive, fully decoded so the
// matcher can scan it repeatedly without re-reading the zip.
type Source struct {
	Name string
	Rows []Row
}

// ReadArchive opens the downloaded zip and parses every CSV member into a
// Source. Non-CSV members (the license and copyright stubs MaxMind ships) are
// skipped. The CSVs are decoded as ISO-8859-1: organization names contain raw
// Latin-1 bytes that are not valid UTF-8, and a strict decode would reject
// real-world data.
func ReadArchive(path string) ([]Source, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}
	defer zr.Close()

	var sources []Source
	for _, member := range zr.File {
		if !strings.HasSuffix(strings.ToLower(member.Name), ".csv") {
			continue
		}

		rc, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrArchiveCorrupt, member.Name, err)
		}
		rows, err := readRows(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrArchiveCorrupt, member.Name, err)
		}

		log.Debug("parsed dataset file", "file", member.Name, "rows", len(rows))
		sources = append(sources, Source{Name: member.Name, Rows: rows})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no CSV files in archive", ErrArchiveCorrupt)
	}
	return sources, nil
}

func readRows(r io.Reader) ([]Row, error) {
	decoded := transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 3 {
			continue
		}
		rows = append(rows, Row{
			Network:      record[0],
			ASN:          record[1],
			Organization: record[2],
		})
	}
	return rows, nil
}
