//go:build integration

// functions that are useful in integration tests

package integration

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"io"
	"net/http"
	"regexp"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentid/walletpass/internal/pkpass/testutil"
)

// fakeSendGrid stands in for the SendGrid v3 mail send API and records the messages it accepts
type fakeSendGrid struct {
	mu       sync.Mutex
	messages []sentMessage
}

type sentMessage struct {
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func (f *fakeSendGrid) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg sentMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (f *fakeSendGrid) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// downloadLink extracts the pass download link from the html part of a message
func downloadLink(t *testing.T, msg sentMessage) string {
	t.Helper()
	for _, c := range msg.Content {
		if c.Type != "text/html" {
			continue
		}
		if m := hrefPattern.FindStringSubmatch(c.Value); m != nil {
			return m[1]
		}
	}
	t.Fatal("message has no download link")
	return ""
}

// passSubmission returns a complete submission with the photo inlined as a data URI
func passSubmission(t *testing.T, email, barcode string) map[string]any {
	t.Helper()
	photo := testutil.PNG(t, 90, color.RGBA{R: 0x8b, A: 0xff})
	return map[string]any{
		"schoolYear":     "2023-2024",
		"barcodeData":    barcode,
		"name":           "Jane Doe",
		"email":          email,
		"gradeLevel":     "11",
		"graduationYear": "2025",
		"advisory":       "Smith 204",
		"studentID":      "100234",
		"imageURL":       "data:image/png;base64," + base64.StdEncoding.EncodeToString(photo),
	}
}

// postPass submits body to path with the allowed origin and returns the status and decoded message
func postPass(t *testing.T, env *testEnv, path string, body any) (int, string) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var msg struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("response is not a message: %s", raw)
	}
	return resp.StatusCode, msg.Message
}

type userPassRow struct {
	email            string
	name             string
	passFileLocation string
}

// findUserPass reads the operator view over the users collection
func findUserPass(t *testing.T, pool *pgxpool.Pool, email string) (userPassRow, bool) {
	t.Helper()
	var row userPassRow
	err := pool.QueryRow(context.Background(),
		"SELECT email, name, pass_file_location FROM user_passes WHERE email = $1", email,
	).Scan(&row.email, &row.name, &row.passFileLocation)
	if err == pgx.ErrNoRows {
		return row, false
	}
	if err != nil {
		t.Fatalf("failed to query user_passes: %v", err)
	}
	return row, true
}

func countUserPasses(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM user_passes").Scan(&n); err != nil {
		t.Fatalf("failed to count user_passes: %v", err)
	}
	return n
}
