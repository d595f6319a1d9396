package cli

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentid/walletpass/internal/issuance"
	"github.com/studentid/walletpass/internal/pkpass"
	"github.com/studentid/walletpass/internal/pkpass/testutil"
)

const janeRequest = `{
	"schoolYear": "2023-2024",
	"barcodeData": "12345",
	"name": "Jane Doe",
	"email": "jane.doe@example.edu",
	"gradeLevel": "11",
	"graduationYear": "2025",
	"advisory": "Smith 204",
	"studentID": "100234",
	"imageURL": "data:image/png;base64,iVBORw0KGgo="
}`

func writeRequest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadPassRequest(t *testing.T) {
	req, err := readPassRequest(writeRequest(t, janeRequest))
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", req.Name)

	_, err = readPassRequest(writeRequest(t, `{"name": "Jane Doe"}`))
	assert.EqualError(t, err, issuance.MsgMissingFields)

	_, err = readPassRequest(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestPrintIdentifiers(t *testing.T) {
	req, err := readPassRequest(writeRequest(t, janeRequest))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printIdentifiers(&out, req, "SJ"))
	assert.Contains(t, out.String(), "serial:     SJ-2023-2024-12345")
	assert.Contains(t, out.String(), "storage:    2023-2024/SJ-2023-2024-12345.pkpass")
	assert.Contains(t, out.String(), "expiration: Expires July 30, 2024")
}

func TestVerifyArchive(t *testing.T) {
	chain := testutil.DevChain(t)
	builder, err := issuance.NewTemplateBuilder(testutil.Template(t), chain.Identity())
	require.NoError(t, err)

	req, err := readPassRequest(writeRequest(t, janeRequest))
	require.NoError(t, err)

	data, err := builder.BuildPass(req, issuance.PassIdentifiers{
		SerialNumber:        "SJ-2023-2024-12345",
		AuthenticationToken: "0123456789abcdef0123456789abcdef",
	}, testutil.PNG(t, 90, color.White))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, verifyArchive(&out, data, chain.RootPool()))
	assert.Contains(t, out.String(), "signature valid")
	assert.Contains(t, out.String(), "serial:     SJ-2023-2024-12345")

	t.Run("untrusted root", func(t *testing.T) {
		other, err := pkpass.GenerateDevChain(pkpass.DevChainOptions{
			PassTypeIdentifier: testutil.PassTypeIdentifier,
			TeamIdentifier:     testutil.TeamIdentifier,
		})
		require.NoError(t, err)
		assert.Error(t, verifyArchive(&bytes.Buffer{}, data, other.RootPool()))
	})

	t.Run("tampered file", func(t *testing.T) {
		archive, err := pkpass.Open(data)
		require.NoError(t, err)
		archive.Files["pass.json"] = append([]byte(nil), archive.Files["pass.json"]...)
		archive.Files["pass.json"][0] = ' '
		tampered, err := pkpass.WriteArchive(archive.Files)
		require.NoError(t, err)
		assert.Error(t, verifyArchive(&bytes.Buffer{}, tampered, nil))
	})
}
