package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/studentid/walletpass/internal/issuance"
)

var validateCmd = &cobra.Command{
	Use:   "validate <request.json>",
	Short: "Validate a pass submission",
	Long: `Validate a pass submission the same way the server does and print the identifiers the pass would get.

Use - to read the submission from stdin.

Example:
  passctl validate ./testdata/jane.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readPassRequest(args[0])
		if err != nil {
			return err
		}
		return printIdentifiers(cmd.OutOrStdout(), req, cfg.SerialPrefix)
	},
}

// readPassRequest decodes and validates the submission at path ("-" for stdin)
func readPassRequest(path string) (issuance.PassRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return issuance.PassRequest{}, fmt.Errorf("failed to open request: %w", err)
		}
		defer f.Close()
		r = f
	}

	req, err := issuance.DecodePassRequest(r)
	if err != nil {
		return issuance.PassRequest{}, err
	}
	if err := issuance.ValidatePassRequest(req); err != nil {
		return issuance.PassRequest{}, err
	}
	return req, nil
}

func printIdentifiers(w io.Writer, req issuance.PassRequest, prefix string) error {
	serial := issuance.SerialNumber(prefix, req.SchoolYear, req.BarcodeData)
	_, err := fmt.Fprintf(w, "valid\nserial:     %s\nstorage:    %s\nexpiration: %s\n",
		serial,
		issuance.PassFilePath(req.SchoolYear, serial),
		issuance.ExpirationText(req.SchoolYear),
	)
	return err
}
