package pkpass

// manifest.go - manifest.json lists every file in the pass with its SHA-1 digest.
// Wallet clients require SHA-1 here; the signature over the manifest uses SHA-256.

import (
	"crypto/sha1" // #nosec G505 -- SHA-1 is mandated by the pass manifest format
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// Manifest maps file names to lowercase hex SHA-1 digests.
type Manifest map[string]string

// CalculateSHA1Hex returns the hex SHA-1 digest of data
func CalculateSHA1Hex(data []byte) string {
	sum := sha1.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// BuildManifest computes the manifest for files. manifest.json and signature are never listed.
func BuildManifest(files map[string][]byte) Manifest {
	m := make(Manifest, len(files))
	for name, data := range files {
		if name == "manifest.json" || name == "signature" {
			continue
		}
		m[name] = CalculateSHA1Hex(data)
	}
	return m
}

// Marshal returns the canonical JSON encoding of the manifest.
func (m Manifest) Marshal() ([]byte, error) {
	raw, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, WrapInternalError(err, "failed to marshal manifest")
	}
	return CanonicalizeJSON(raw)
}

// Verify checks that files and the manifest list the same names and that every digest matches.
func (m Manifest) Verify(files map[string][]byte) error {
	for name, data := range files {
		if name == "manifest.json" || name == "signature" {
			continue
		}
		want, ok := m[name]
		if !ok {
			return NewManifestError(fmt.Sprintf("%s is not listed in the manifest", name))
		}
		if got := CalculateSHA1Hex(data); got != want {
			return NewManifestError(fmt.Sprintf("digest mismatch for %s: manifest %s, computed %s", name, want, got))
		}
	}

	var missing []string
	for name := range m {
		if _, ok := files[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return NewManifestError(fmt.Sprintf("manifest lists files missing from the pass: %v", missing))
	}
	return nil
}

// ParseManifest decodes manifest.json
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, WrapManifestError(err, "manifest.json is not valid")
	}
	return m, nil
}

// CanonicalizeJSON converts JSON to canonical form per RFC 8785 so identical passes
// produce identical manifests and signatures.
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	out, err := jcs.Transform(jsonData)
	if err != nil {
		return nil, WrapValidationError(err, "failed to canonicalize JSON")
	}
	return out, nil
}
