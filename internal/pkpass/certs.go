package pkpass

// certs.go - loading the pass signing identity: the Apple WWDR intermediate, the pass type id
// certificate and its (usually passphrase protected) private key.

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/youmark/pkcs8"
)

// SigningIdentity is the trust chain used to sign a pass.
type SigningIdentity struct {
	// Certificate is the pass type id certificate
	Certificate *x509.Certificate

	// Key is the private key for Certificate
	Key crypto.Signer

	// Intermediates are included in the signature (the WWDR certificate)
	Intermediates []*x509.Certificate
}

// NewSigningIdentity checks that key belongs to cert and returns the identity.
func NewSigningIdentity(cert *x509.Certificate, key crypto.Signer, intermediates ...*x509.Certificate) (*SigningIdentity, error) {
	if cert == nil || key == nil {
		return nil, NewInternalError("signing identity requires a certificate and a key")
	}

	pub, ok := key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return nil, NewKeyError("signer key does not match the signer certificate")
	}

	return &SigningIdentity{
		Certificate:   cert,
		Key:           key,
		Intermediates: intermediates,
	}, nil
}

// LoadSigningIdentity reads the WWDR certificate, signer certificate and signer key from PEM files.
//
// The key may be an ENCRYPTED PRIVATE KEY (PKCS#8), a legacy encrypted PKCS#1 key, or an unencrypted
// PKCS#1, PKCS#8 or EC key. passphrase is ignored for unencrypted keys.
func LoadSigningIdentity(wwdrPath, certPath, keyPath, passphrase string) (*SigningIdentity, error) {
	wwdr, err := ReadCertChainFromPEMFile(wwdrPath)
	if err != nil {
		return nil, err
	}

	signerChain, err := ReadCertChainFromPEMFile(certPath)
	if err != nil {
		return nil, err
	}

	keyPEM, err := readFile(keyPath)
	if err != nil {
		return nil, WrapKeyError(err, fmt.Sprintf("failed to read %s", keyPath))
	}

	key, err := ParsePrivateKeyPEM(keyPEM, passphrase)
	if err != nil {
		return nil, err
	}

	// any extra certificates bundled with the signer cert are sent as intermediates too
	intermediates := append(wwdr, signerChain[1:]...)

	return NewSigningIdentity(signerChain[0], key, intermediates...)
}

// ParsePrivateKeyPEM parses the first private key block in pemData.
func ParsePrivateKeyPEM(pemData []byte, passphrase string) (crypto.Signer, error) {
	var block *pem.Block
	remaining := pemData
	for {
		block, remaining = pem.Decode(remaining)
		if block == nil {
			return nil, NewKeyError("no private key found in PEM data")
		}
		switch block.Type {
		case "ENCRYPTED PRIVATE KEY", "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			return parsePrivateKeyBlock(block, passphrase)
		}
	}
}

func parsePrivateKeyBlock(block *pem.Block, passphrase string) (crypto.Signer, error) {
	der := block.Bytes

	//lint:ignore SA1019 legacy openssl encrypted keys are still issued by the Apple tooling
	if x509.IsEncryptedPEMBlock(block) {
		if passphrase == "" {
			return nil, NewKeyError("signer key is encrypted but no passphrase was provided")
		}
		//lint:ignore SA1019 see above
		decrypted, err := x509.DecryptPEMBlock(block, []byte(passphrase))
		if err != nil {
			return nil, WrapKeyError(err, "failed to decrypt signer key")
		}
		der = decrypted
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return nil, NewKeyError("signer key is encrypted but no passphrase was provided")
		}
		key, err = pkcs8.ParsePKCS8PrivateKey(der, []byte(passphrase))
	case "PRIVATE KEY":
		key, err = pkcs8.ParsePKCS8PrivateKey(der)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(der)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(der)
	}
	if err != nil {
		return nil, WrapKeyError(err, fmt.Sprintf("failed to parse %s", block.Type))
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, NewKeyError(fmt.Sprintf("unsupported private key type %T", key))
	}
	return signer, nil
}

// EncryptPrivateKeyPEM encodes key as a passphrase protected PKCS#8 PEM block.
// An empty passphrase produces an unencrypted PRIVATE KEY block.
func EncryptPrivateKeyPEM(key crypto.Signer, passphrase string) ([]byte, error) {
	if passphrase == "" {
		der, err := pkcs8.MarshalPrivateKey(key, nil, nil)
		if err != nil {
			return nil, WrapKeyError(err, "failed to marshal private key")
		}
		return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
	}

	der, err := pkcs8.MarshalPrivateKey(key, []byte(passphrase), nil)
	if err != nil {
		return nil, WrapKeyError(err, "failed to encrypt private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}), nil
}

// ParseCertificateChain parses one or more X.509 certificates from PEM-encoded data.
// The certificates are returned in the order they appear in the PEM data.
// Non-certificate blocks are skipped.
func ParseCertificateChain(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	var block *pem.Block
	remaining := pemData

	for {
		block, remaining = pem.Decode(remaining)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, WrapCertificateError(err, "failed to parse certificate")
		}

		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, NewCertificateError("no certificates found in PEM data")
	}

	return certs, nil
}

// ReadCertChainFromPEMFile loads a certificate chain from a PEM file.
func ReadCertChainFromPEMFile(path string) ([]*x509.Certificate, error) {
	pemData, err := readFile(path)
	if err != nil {
		return nil, WrapCertificateError(err, fmt.Sprintf("failed to read %s", path))
	}
	return ParseCertificateChain(pemData)
}

// LoadRootPool loads trusted roots from a PEM file into a cert pool.
func LoadRootPool(path string) (*x509.CertPool, error) {
	certs, err := ReadCertChainFromPEMFile(path)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool, nil
}

// ValidateCertificateChain validates the signer certificate against roots.
//
// Parameters:
//   - certChain: Certificate chain (leaf first)
//   - roots: Root CA pool (nil = system roots)
func ValidateCertificateChain(certChain []*x509.Certificate, roots *x509.CertPool) error {
	if len(certChain) == 0 {
		return NewInternalError("empty certificate chain")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certChain[1:] {
		intermediates.AddCert(cert)
	}

	leaf := certChain[0]
	chains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   time.Now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return WrapCertificateError(err, "certificate chain validation failed")
	}
	if len(chains) == 0 {
		return NewCertificateError("no valid certificate chains found")
	}

	return nil
}

// readFile reads a single file without following paths outside its directory
func readFile(path string) ([]byte, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	defer root.Close()

	return root.ReadFile(filepath.Base(path))
}
