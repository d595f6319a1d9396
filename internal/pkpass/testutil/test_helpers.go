// Package testutil provides signing chains and pass models for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/studentid/walletpass/internal/pkpass"
)

const (
	PassTypeIdentifier = "pass.edu.example.studentid"
	TeamIdentifier     = "TEAM123456"
)

var (
	chainOnce sync.Once
	chain     *pkpass.DevChain
	chainErr  error
)

// DevChain returns a development signing chain shared by all tests in the binary.
func DevChain(t testing.TB) *pkpass.DevChain {
	t.Helper()

	chainOnce.Do(func() {
		chain, chainErr = pkpass.GenerateDevChain(pkpass.DevChainOptions{
			PassTypeIdentifier: PassTypeIdentifier,
			TeamIdentifier:     TeamIdentifier,
			OrganizationName:   "Example Preparatory School",
		})
	})
	if chainErr != nil {
		t.Fatalf("failed to generate signing chain: %v", chainErr)
	}
	return chain
}

// PNG returns a small solid colour PNG.
func PNG(t testing.TB, size int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := range size {
		for y := range size {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// PassJSON is the pass.json of the test model
const PassJSON = `{
  "formatVersion": 1,
  "passTypeIdentifier": "` + PassTypeIdentifier + `",
  "teamIdentifier": "` + TeamIdentifier + `",
  "organizationName": "Example Preparatory School",
  "description": "Student Identification",
  "foregroundColor": "rgb(255, 255, 255)",
  "backgroundColor": "rgb(120, 0, 0)",
  "generic": {
    "headerFields": [{"key": "school", "label": "School", "value": "Example Prep"}]
  }
}`

// ModelFS returns an in-memory pass model.
func ModelFS(t testing.TB) fstest.MapFS {
	t.Helper()

	return fstest.MapFS{
		"pass.json":             {Data: []byte(PassJSON)},
		"icon.png":              {Data: PNG(t, 29, color.White)},
		"icon@2x.png":           {Data: PNG(t, 58, color.White)},
		"logo.png":              {Data: PNG(t, 50, color.Black)},
		"en.lproj/pass.strings": {Data: []byte(`"School" = "School";`)},
		".DS_Store":             {Data: []byte("junk")},
	}
}

// Template returns the test model as a loaded template.
func Template(t testing.TB) *pkpass.Template {
	t.Helper()

	tmpl, err := pkpass.LoadTemplateFS(ModelFS(t))
	if err != nil {
		t.Fatalf("failed to load test template: %v", err)
	}
	return tmpl
}

// SigningFiles writes the chain to dir in the layout read by LoadSigningIdentity and
// returns the wwdr, signer certificate and signer key paths.
func SigningFiles(t testing.TB, dir, passphrase string) (wwdrPath, certPath, keyPath string) {
	t.Helper()

	c := DevChain(t)
	keyPEM, err := pkpass.EncryptPrivateKeyPEM(c.SignerKey, passphrase)
	if err != nil {
		t.Fatalf("failed to encode signer key: %v", err)
	}

	wwdrPath = filepath.Join(dir, "wwdr.pem")
	certPath = filepath.Join(dir, "signerCert.pem")
	keyPath = filepath.Join(dir, "signerKey.pem")

	for path, data := range map[string][]byte{
		wwdrPath:                       pkpass.EncodeCertificatePEM(c.Intermediate),
		certPath:                       pkpass.EncodeCertificatePEM(c.Signer),
		keyPath:                        keyPEM,
		filepath.Join(dir, "root.pem"): pkpass.EncodeCertificatePEM(c.Root),
	} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return wwdrPath, certPath, keyPath
}
