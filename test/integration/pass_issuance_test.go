//go:build integration

package integration

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentid/walletpass/internal/issuance"
	"github.com/studentid/walletpass/internal/pkpass"
)

func TestIssuePass(t *testing.T) {
	env := startInProcessServer(t, nil)
	defer env.shutdown()

	status, msg := postPass(t, env, "/pass", passSubmission(t, "Jane.Doe@example.edu", "12345"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, issuance.MsgPassCreated, msg)

	// the record is keyed by the email as submitted
	row, ok := findUserPass(t, env.pool, "Jane.Doe@example.edu")
	require.True(t, ok, "user record not written")
	assert.Equal(t, "Jane Doe", row.name)
	assert.Equal(t, "2023-2024/SJ-2023-2024-12345.pkpass", row.passFileLocation)

	sent := env.sendgrid.sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Personalizations, 1)
	assert.Equal(t, "Jane.Doe@example.edu", sent[0].Personalizations[0].To[0].Email)

	t.Run("download link serves the signed pass", func(t *testing.T) {
		resp, err := http.Get(downloadLink(t, sent[0]))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, pkpass.ContentType, resp.Header.Get("Content-Type"))

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		roots, err := pkpass.LoadRootPool(env.rootsPath)
		require.NoError(t, err)

		archive, err := pkpass.Open(data)
		require.NoError(t, err)
		_, err = archive.Verify(roots)
		require.NoError(t, err)

		passJSON, err := archive.PassJSON()
		require.NoError(t, err)
		assert.Equal(t, "SJ-2023-2024-12345", passJSON["serialNumber"])
		assert.Len(t, passJSON["authenticationToken"], 32)
	})

	t.Run("links without a valid token are refused", func(t *testing.T) {
		resp, err := http.Get(env.baseURL + "/downloads/2023-2024/SJ-2023-2024-12345.pkpass?token=forged")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestDownloadLinkForEscapedBarcode(t *testing.T) {
	env := startInProcessServer(t, nil)
	defer env.shutdown()

	status, msg := postPass(t, env, "/pass", passSubmission(t, "jane@example.edu", "50%41"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, issuance.MsgPassCreated, msg)

	sent := env.sendgrid.sent()
	require.Len(t, sent, 1)

	resp, err := http.Get(downloadLink(t, sent[0]))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	archive, err := pkpass.Open(data)
	require.NoError(t, err)
	passJSON, err := archive.PassJSON()
	require.NoError(t, err)
	assert.Equal(t, "SJ-2023-2024-50%41", passJSON["serialNumber"])
}

func TestResubmissionReplacesRecord(t *testing.T) {
	env := startInProcessServer(t, nil)
	defer env.shutdown()

	status, _ := postPass(t, env, "/v1/passes", passSubmission(t, "jane@example.edu", "12345"))
	require.Equal(t, http.StatusOK, status)

	status, _ = postPass(t, env, "/v1/passes", passSubmission(t, "jane@example.edu", "67890"))
	require.Equal(t, http.StatusOK, status)

	row, ok := findUserPass(t, env.pool, "jane@example.edu")
	require.True(t, ok)
	assert.Equal(t, "2023-2024/SJ-2023-2024-67890.pkpass", row.passFileLocation)
	assert.Equal(t, 1, countUserPasses(t, env.pool))
	assert.Len(t, env.sendgrid.sent(), 2)
}

func TestRejectedSubmissionsHaveNoSideEffects(t *testing.T) {
	env := startInProcessServer(t, nil)
	defer env.shutdown()

	missing := passSubmission(t, "jane@example.edu", "12345")
	delete(missing, "advisory")

	invalidEmail := passSubmission(t, "not-an-email", "12345")

	invalidImage := passSubmission(t, "jane@example.edu", "12345")
	invalidImage["imageURL"] = 42

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing field", missing, "Missing required fields"},
		{"invalid email", invalidEmail, "Invalid email"},
		{"non string image", invalidImage, "Invalid image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := postPass(t, env, "/pass", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, msg)
		})
	}

	assert.Equal(t, 0, countUserPasses(t, env.pool))
	assert.Empty(t, env.sendgrid.sent())
}

func TestDisallowedOrigin(t *testing.T) {
	env := startInProcessServer(t, nil)
	defer env.shutdown()

	req, err := http.NewRequest(http.MethodPost, env.baseURL+"/pass", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnhandledFailureStatus(t *testing.T) {
	// an unreachable photo host fails the image stage
	unreachable := func(t *testing.T) map[string]any {
		body := passSubmission(t, "jane@example.edu", "12345")
		body["imageURL"] = "http://127.0.0.1:1/photo.png"
		return body
	}

	t.Run("legacy status codes", func(t *testing.T) {
		env := startInProcessServer(t, nil)
		defer env.shutdown()

		status, msg := postPass(t, env, "/pass", unreachable(t))
		assert.Equal(t, http.StatusOK, status)
		assert.NotEqual(t, issuance.MsgPassCreated, msg)
		assert.Contains(t, msg, "failed to fetch image")
		assert.Equal(t, 0, countUserPasses(t, env.pool))
	})

	t.Run("strict status codes", func(t *testing.T) {
		env := startInProcessServer(t, map[string]string{"LEGACY_STATUS_CODES": "false"})
		defer env.shutdown()

		status, msg := postPass(t, env, "/pass", unreachable(t))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Contains(t, msg, "failed to fetch image")
	})
}
