package issuance

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultSerialPrefix is prepended to every serial number unless configured otherwise.
const DefaultSerialPrefix = "SJ"

const authenticationTokenBytes = 16

// SerialNumber composes the pass serial number, e.g. SJ-2023-2024-12345.
//
// The serial is not checked for uniqueness: two submissions with the same school year and
// barcode get the same serial and the later pass overwrites the stored archive.
func SerialNumber(prefix, schoolYear, barcodeData string) string {
	return prefix + "-" + schoolYear + "-" + barcodeData
}

// ExpirationText is shown on the back of the pass and below the barcode.
// Passes expire on July 30 of the second year of the school year ("2023-2024" expires 2024).
func ExpirationText(schoolYear string) string {
	year := schoolYear
	if _, second, ok := strings.Cut(schoolYear, "-"); ok {
		year, _, _ = strings.Cut(second, "-")
	}
	return "Expires July 30, " + year
}

// PassFilePath is the object storage path of a pass archive.
func PassFilePath(schoolYear, serialNumber string) string {
	return schoolYear + "/" + serialNumber + ".pkpass"
}

// NewAuthenticationToken returns 16 random bytes as 32 lower-case hex characters.
func NewAuthenticationToken() (string, error) {
	b := make([]byte, authenticationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate authentication token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
