// certgen generates a development signing chain for passes: a root CA, a WWDR style intermediate
// and a pass type certificate. Passes signed with it verify locally but are rejected by Wallet.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/studentid/walletpass/internal/pkpass"
	"github.com/studentid/walletpass/internal/version"
)

// file names read by the server defaults (PASS_WWDR_CERT_PATH etc.)
const (
	rootFileName       = "root.pem"
	wwdrFileName       = "wwdr.pem"
	signerCertFileName = "signerCert.pem"
	signerKeyFileName  = "signerKey.pem"
)

var (
	outputDir          string
	passTypeIdentifier string
	teamIdentifier     string
	organizationName   string
	passphrase         string
	keySize            int
	validityDays       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "certgen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Development certificate generator for pass signing",
		Long:              "Generate a self signed certificate chain in the layout expected by pass-server for local development and testing",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new signing chain",
		Long:  "Generate a root CA, an intermediate and a passphrase protected pass signing key and certificate",
		RunE:  runGenerate,
	}

	generateCmd.Flags().StringVarP(&outputDir, "outputdir", "o", "", "Output directory for generated files [required]")
	generateCmd.Flags().StringVar(&passTypeIdentifier, "pass-type", "pass.edu.example.studentid", "Pass type identifier")
	generateCmd.Flags().StringVar(&teamIdentifier, "team", "DEVTEAM001", "Team identifier")
	generateCmd.Flags().StringVar(&organizationName, "organization", "Development School", "Organization name")
	generateCmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "Passphrase for the signer key (default: unencrypted)")
	generateCmd.Flags().IntVarP(&keySize, "size", "s", 2048, "RSA key size in bits (2048 or 4096)")
	generateCmd.Flags().IntVar(&validityDays, "days", 365, "Certificate validity in days")
	generateCmd.MarkFlagRequired("outputdir")

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if keySize != 2048 && keySize != 4096 {
		return fmt.Errorf("invalid RSA key size: %d (must be 2048 or 4096)", keySize)
	}

	// make the directory if it doesn't exist
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Printf("Generating %d-bit signing chain for %s\n", keySize, passTypeIdentifier)

	chain, err := pkpass.GenerateDevChain(pkpass.DevChainOptions{
		PassTypeIdentifier: passTypeIdentifier,
		TeamIdentifier:     teamIdentifier,
		OrganizationName:   organizationName,
		KeyBits:            keySize,
		Validity:           time.Duration(validityDays) * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to generate signing chain: %w", err)
	}

	keyPEM, err := pkpass.EncryptPrivateKeyPEM(chain.SignerKey, passphrase)
	if err != nil {
		return fmt.Errorf("failed to encode signer key: %w", err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{rootFileName, pkpass.EncodeCertificatePEM(chain.Root), 0o644},
		{wwdrFileName, pkpass.EncodeCertificatePEM(chain.Intermediate), 0o644},
		{signerCertFileName, pkpass.EncodeCertificatePEM(chain.Signer), 0o644},
		{signerKeyFileName, keyPEM, 0o600},
	}
	for _, f := range files {
		path := filepath.Join(outputDir, f.name)
		if err := os.WriteFile(path, f.data, f.mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Printf("✓ %s\n", path)
	}

	if passphrase == "" {
		fmt.Println("signer key is not encrypted; leave PASS_SIGNER_KEY_PASSPHRASE unset")
	}
	return nil
}
