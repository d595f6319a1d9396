package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/studentid/walletpass/internal/issuance"
	"github.com/studentid/walletpass/internal/services"
)

var buildCmd = &cobra.Command{
	Use:   "build <request.json>",
	Short: "Build a signed pass locally",
	Long: `Build and sign a pass from a submission without storing it or sending email.

The pass model and signing certificates are read from the same settings as the server
(PASS_MODEL_DIR, PASS_WWDR_CERT_PATH, PASS_SIGNER_CERT_PATH, PASS_SIGNER_KEY_PATH).

Example:
  passctl build ./testdata/jane.json -o jane.pkpass`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

var buildOutput string

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output .pkpass file (default: <serial>.pkpass)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	req, err := readPassRequest(args[0])
	if err != nil {
		return err
	}

	builder, err := issuance.LoadTemplateBuilder(
		cfg.PassModelDir,
		cfg.PassWWDRCertPath,
		cfg.PassSignerCertPath,
		cfg.PassSignerKeyPath,
		cfg.PassSignerKeyPassphrase,
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ImageFetchTimeout)
	defer cancel()

	images := &services.HTTPImageFetcher{Client: &http.Client{}, MaxBytes: cfg.MaxImageBytes}
	photo, err := images.FetchImage(ctx, req.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to resolve photo: %w", err)
	}

	token, err := issuance.NewAuthenticationToken()
	if err != nil {
		return err
	}
	ids := issuance.PassIdentifiers{
		SerialNumber:        issuance.SerialNumber(cfg.SerialPrefix, req.SchoolYear, req.BarcodeData),
		AuthenticationToken: token,
	}

	data, err := builder.BuildPass(req, ids, photo)
	if err != nil {
		return err
	}

	out := buildOutput
	if out == "" {
		out = ids.SerialNumber + ".pkpass"
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write pass: %w", err)
	}

	appLogger.Info("pass built",
		slog.String("serial_number", ids.SerialNumber),
		slog.String("file", out),
		slog.Int("bytes", len(data)),
	)
	return nil
}
