package pkpass

import (
	"archive/zip"
	"bytes"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// ContentType is the media type of a .pkpass archive
const ContentType = "application/vnd.apple.pkpass"

// limits applied when opening untrusted archives
const (
	maxArchiveEntries    = 256
	maxArchiveEntryBytes = 20 << 20
)

// zip entries carry a fixed timestamp so the archive bytes depend only on the pass contents
var archiveModTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// WriteArchive zips files in name order.
func WriteArchive(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: archiveModTime,
		})
		if err != nil {
			return nil, WrapInternalError(err, fmt.Sprintf("failed to add %s to archive", name))
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, WrapInternalError(err, fmt.Sprintf("failed to write %s", name))
		}
	}
	if err := zw.Close(); err != nil {
		return nil, WrapInternalError(err, "failed to finish archive")
	}
	return buf.Bytes(), nil
}

// Archive is an opened .pkpass file.
type Archive struct {
	Files map[string][]byte
}

// Open reads a .pkpass archive.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, WrapValidationError(err, "not a zip archive")
	}
	if len(zr.File) > maxArchiveEntries {
		return nil, NewValidationError(fmt.Sprintf("archive has %d entries (max %d)", len(zr.File), maxArchiveEntries))
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !validFileName(f.Name) {
			return nil, NewValidationError(fmt.Sprintf("invalid file name in archive: %q", f.Name))
		}
		if _, dup := files[f.Name]; dup {
			return nil, NewValidationError(fmt.Sprintf("duplicate file in archive: %s", f.Name))
		}

		rc, err := f.Open()
		if err != nil {
			return nil, WrapValidationError(err, fmt.Sprintf("failed to open %s", f.Name))
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntryBytes+1))
		rc.Close()
		if err != nil {
			return nil, WrapValidationError(err, fmt.Sprintf("failed to read %s", f.Name))
		}
		if len(content) > maxArchiveEntryBytes {
			return nil, NewValidationError(fmt.Sprintf("%s exceeds %d bytes", f.Name, maxArchiveEntryBytes))
		}
		files[f.Name] = content
	}

	for _, required := range []string{"pass.json", "manifest.json", "signature"} {
		if _, ok := files[required]; !ok {
			return nil, NewValidationError(fmt.Sprintf("archive has no %s", required))
		}
	}

	return &Archive{Files: files}, nil
}

// PassJSON decodes the archive's pass.json
func (a *Archive) PassJSON() (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(a.Files["pass.json"], &doc); err != nil {
		return nil, WrapValidationError(err, "pass.json is not a JSON object")
	}
	return doc, nil
}

// Verify checks the manifest digests and the signature. roots is the trust anchor for the
// signer chain; nil skips chain validation.
// The signer certificate is returned on success.
func (a *Archive) Verify(roots *x509.CertPool) (*x509.Certificate, error) {
	manifest, err := ParseManifest(a.Files["manifest.json"])
	if err != nil {
		return nil, err
	}
	if err := manifest.Verify(a.Files); err != nil {
		return nil, err
	}
	return VerifyManifestSignature(a.Files["manifest.json"], a.Files["signature"], roots)
}
