package pkpass_test

import (
	"archive/zip"
	"bytes"
	"crypto/x509"
	"encoding/json"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentid/walletpass/internal/pkpass"
	"github.com/studentid/walletpass/internal/pkpass/testutil"
)

func newTestPass(t *testing.T) *pkpass.Pass {
	t.Helper()

	p := testutil.Template(t).NewPass("SJ-2023-2024-12345", "0123456789abcdef0123456789abcdef")
	p.AddPrimaryField(pkpass.Field{Key: "name", Label: "Student Identification", Value: "Jane Doe"})
	p.AddSecondaryField(pkpass.Field{Key: "grade", Label: "Grade", Value: "11", TextAlignment: pkpass.AlignNatural})
	p.AddSecondaryField(pkpass.Field{Key: "class", Label: "Class", Value: "2025", TextAlignment: pkpass.AlignRight})
	p.AddAuxiliaryField(pkpass.Field{Key: "advisory", Label: "Advisory", Value: "A12"})
	p.AddBackField(pkpass.Field{Key: "expiration", Label: "Expires July 30, 2024", TextAlignment: pkpass.AlignCenter})
	p.SetBarcode(pkpass.Barcode{
		Format:          pkpass.BarcodeCode128,
		Message:         "12345",
		MessageEncoding: "utf-8",
		AltText:         "Expires July 30, 2024",
	})
	require.NoError(t, p.AddFile("thumbnail.png", testutil.PNG(t, 90, color.Black)))
	require.NoError(t, p.AddFile("thumbnail@2x.png", testutil.PNG(t, 90, color.Black)))
	return p
}

func TestSerializeProducesVerifiableArchive(t *testing.T) {
	chain := testutil.DevChain(t)
	p := newTestPass(t)

	data, err := p.Serialize(chain.Identity())
	require.NoError(t, err)

	archive, err := pkpass.Open(data)
	require.NoError(t, err)

	for _, name := range []string{"pass.json", "manifest.json", "signature", "icon.png", "icon@2x.png", "logo.png", "thumbnail.png", "thumbnail@2x.png", "en.lproj/pass.strings"} {
		assert.Contains(t, archive.Files, name)
	}
	assert.NotContains(t, archive.Files, ".DS_Store")

	signer, err := archive.Verify(chain.RootPool())
	require.NoError(t, err)
	assert.True(t, signer.Equal(chain.Signer))

	doc, err := archive.PassJSON()
	require.NoError(t, err)
	assert.Equal(t, "SJ-2023-2024-12345", doc["serialNumber"])
	assert.Equal(t, "0123456789abcdef0123456789abcdef", doc["authenticationToken"])

	generic := doc["generic"].(map[string]any)
	primary := generic["primaryFields"].([]any)
	require.Len(t, primary, 1)
	assert.Equal(t, "Jane Doe", primary[0].(map[string]any)["value"])

	// template header fields survive
	assert.Len(t, generic["headerFields"].([]any), 1)

	secondary := generic["secondaryFields"].([]any)
	require.Len(t, secondary, 2)
	assert.Equal(t, "PKTextAlignmentRight", secondary[1].(map[string]any)["textAlignment"])

	barcodes := doc["barcodes"].([]any)
	require.Len(t, barcodes, 1)
	barcode := barcodes[0].(map[string]any)
	assert.Equal(t, "PKBarcodeFormatCode128", barcode["format"])
	assert.Equal(t, "12345", barcode["message"])
	assert.Equal(t, "utf-8", barcode["messageEncoding"])
	assert.Equal(t, "Expires July 30, 2024", barcode["altText"])
	assert.Equal(t, barcode, doc["barcode"])
}

func TestSerializeIsDeterministic(t *testing.T) {
	chain := testutil.DevChain(t)

	first, err := newTestPass(t).Serialize(chain.Identity())
	require.NoError(t, err)
	second, err := newTestPass(t).Serialize(chain.Identity())
	require.NoError(t, err)

	a, err := pkpass.Open(first)
	require.NoError(t, err)
	b, err := pkpass.Open(second)
	require.NoError(t, err)

	// signatures embed a signing time, everything else is byte identical
	assert.Equal(t, a.Files["pass.json"], b.Files["pass.json"])
	assert.Equal(t, a.Files["manifest.json"], b.Files["manifest.json"])
}

func TestManifestListsEveryFile(t *testing.T) {
	chain := testutil.DevChain(t)
	data, err := newTestPass(t).Serialize(chain.Identity())
	require.NoError(t, err)

	archive, err := pkpass.Open(data)
	require.NoError(t, err)

	manifest, err := pkpass.ParseManifest(archive.Files["manifest.json"])
	require.NoError(t, err)

	assert.Len(t, manifest, len(archive.Files)-2)
	assert.NotContains(t, manifest, "manifest.json")
	assert.NotContains(t, manifest, "signature")
	assert.Equal(t, pkpass.CalculateSHA1Hex(archive.Files["pass.json"]), manifest["pass.json"])
}

func TestVerifyDetectsTampering(t *testing.T) {
	chain := testutil.DevChain(t)
	data, err := newTestPass(t).Serialize(chain.Identity())
	require.NoError(t, err)

	t.Run("modified file", func(t *testing.T) {
		archive, err := pkpass.Open(data)
		require.NoError(t, err)
		archive.Files["pass.json"] = []byte(`{"serialNumber":"forged"}`)

		_, err = archive.Verify(chain.RootPool())
		assertCode(t, err, pkpass.ErrCodeManifest)
	})

	t.Run("extra file", func(t *testing.T) {
		archive, err := pkpass.Open(data)
		require.NoError(t, err)
		archive.Files["strip.png"] = []byte("unlisted")

		_, err = archive.Verify(chain.RootPool())
		assertCode(t, err, pkpass.ErrCodeManifest)
	})

	t.Run("modified manifest", func(t *testing.T) {
		archive, err := pkpass.Open(data)
		require.NoError(t, err)
		delete(archive.Files, "logo.png")
		manifest := pkpass.BuildManifest(archive.Files)
		archive.Files["manifest.json"], err = manifest.Marshal()
		require.NoError(t, err)

		_, err = archive.Verify(chain.RootPool())
		assertCode(t, err, pkpass.ErrCodeSignature)
	})

	t.Run("untrusted root", func(t *testing.T) {
		archive, err := pkpass.Open(data)
		require.NoError(t, err)

		_, err = archive.Verify(x509.NewCertPool())
		assertCode(t, err, pkpass.ErrCodeSignature)
	})
}

func TestPassValidation(t *testing.T) {
	chain := testutil.DevChain(t)

	t.Run("duplicate field key", func(t *testing.T) {
		p := newTestPass(t)
		p.AddAuxiliaryField(pkpass.Field{Key: "name", Value: "again"})
		_, err := p.Serialize(chain.Identity())
		assertCode(t, err, pkpass.ErrCodeValidation)
	})

	t.Run("reserved file", func(t *testing.T) {
		p := newTestPass(t)
		assertCode(t, p.AddFile("manifest.json", []byte("{}")), pkpass.ErrCodeValidation)
	})

	t.Run("path traversal", func(t *testing.T) {
		p := newTestPass(t)
		assertCode(t, p.AddFile("../evil.png", []byte("x")), pkpass.ErrCodeValidation)
	})

	t.Run("empty file", func(t *testing.T) {
		p := newTestPass(t)
		assertCode(t, p.AddFile("thumbnail.png", nil), pkpass.ErrCodeValidation)
	})

	t.Run("no identity", func(t *testing.T) {
		_, err := newTestPass(t).Serialize(nil)
		assertCode(t, err, pkpass.ErrCodeInternal)
	})
}

func TestPassDoesNotModifyTemplate(t *testing.T) {
	tmpl := testutil.Template(t)

	p := tmpl.NewPass("SJ-1", "")
	p.AddPrimaryField(pkpass.Field{Key: "name", Value: "first"})

	q := tmpl.NewPass("SJ-2", "")
	assert.Empty(t, q.Fields("primaryFields"))
	assert.Len(t, q.Fields("headerFields"), 1)
	assert.Equal(t, "SJ-2", q.SerialNumber())
}

func TestOpenRejectsInvalidArchives(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		_, err := pkpass.Open([]byte("plain text"))
		assertCode(t, err, pkpass.ErrCodeValidation)
	})

	t.Run("missing signature", func(t *testing.T) {
		data, err := pkpass.WriteArchive(map[string][]byte{
			"pass.json":     []byte(`{}`),
			"manifest.json": []byte(`{}`),
		})
		require.NoError(t, err)
		_, err = pkpass.Open(data)
		assertCode(t, err, pkpass.ErrCodeValidation)
	})

	t.Run("traversal entry", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("../pass.json")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{}`))
		require.NoError(t, zw.Close())

		_, err = pkpass.Open(buf.Bytes())
		assertCode(t, err, pkpass.ErrCodeValidation)
	})
}

func TestPassJSONIsCanonical(t *testing.T) {
	out, err := newTestPass(t).PassJSON()
	require.NoError(t, err)

	canonical, err := pkpass.CanonicalizeJSON(out)
	require.NoError(t, err)
	assert.Equal(t, canonical, out)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
}

func assertCode(t *testing.T, err error, want pkpass.ErrorCode) {
	t.Helper()

	require.Error(t, err)
	var passErr *pkpass.PassError
	require.True(t, errors.As(err, &passErr), "error is not a PassError: %v", err)
	assert.Equal(t, want, passErr.Code(), "error: %v", err)
}
