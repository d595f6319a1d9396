package cli

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/studentid/walletpass/internal/pkpass"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <file.pkpass>",
	Short: "Verify a .pkpass archive",
	Long: `Verify the manifest digests and the detached signature of a .pkpass archive.

Without --roots only the manifest and the signature over it are checked. With --roots the signer
chain embedded in the signature must also lead to one of the given root certificates.

Example:
  passctl verify SJ-2023-2024-12345.pkpass --roots ./certs/root.pem`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var rootsPath string

func init() {
	verifyCmd.Flags().StringVar(&rootsPath, "roots", "", "PEM file of trusted root certificates")
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read pass: %w", err)
	}

	var roots *x509.CertPool
	if rootsPath != "" {
		roots, err = pkpass.LoadRootPool(rootsPath)
		if err != nil {
			return err
		}
	}

	return verifyArchive(cmd.OutOrStdout(), data, roots)
}

func verifyArchive(w io.Writer, data []byte, roots *x509.CertPool) error {
	archive, err := pkpass.Open(data)
	if err != nil {
		return err
	}

	signer, err := archive.Verify(roots)
	if err != nil {
		return err
	}

	passJSON, err := archive.PassJSON()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "signature valid\n")
	fmt.Fprintf(w, "signer:     %s\n", signer.Subject.CommonName)
	fmt.Fprintf(w, "serial:     %v\n", passJSON["serialNumber"])
	fmt.Fprintf(w, "pass type:  %v\n", passJSON["passTypeIdentifier"])
	return nil
}
