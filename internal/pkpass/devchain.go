package pkpass

// devchain.go - self signed signing chains for development and tests. Passes signed with a
// development chain are structurally valid but are not accepted by a real wallet.

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"time"
)

// oidUserID is the subject attribute carrying the pass type identifier in Apple pass certificates
var oidUserID = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}

// DevChainOptions configures GenerateDevChain.
type DevChainOptions struct {
	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string
	KeyBits            int
	Validity           time.Duration
}

// DevChain is a root CA, a WWDR style intermediate and a pass signer certificate.
type DevChain struct {
	Root         *x509.Certificate
	Intermediate *x509.Certificate
	Signer       *x509.Certificate
	SignerKey    *rsa.PrivateKey
}

// GenerateDevChain creates a three level chain: root -> intermediate -> signer.
func GenerateDevChain(opts DevChainOptions) (*DevChain, error) {
	if opts.KeyBits == 0 {
		opts.KeyBits = 2048
	}
	if opts.Validity == 0 {
		opts.Validity = 365 * 24 * time.Hour
	}
	if opts.PassTypeIdentifier == "" || opts.TeamIdentifier == "" {
		return nil, NewValidationError("pass type identifier and team identifier are required")
	}

	notBefore := time.Now().Add(-time.Hour)
	notAfter := notBefore.Add(opts.Validity)

	rootKey, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, WrapKeyError(err, "failed to generate root key")
	}
	rootTmpl := &x509.Certificate{
		SerialNumber:          randomSerial(),
		Subject:               pkix.Name{CommonName: "Development Root CA", Organization: []string{opts.OrganizationName}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	root, err := createCertificate(rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, err
	}

	intermediateKey, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, WrapKeyError(err, "failed to generate intermediate key")
	}
	intermediateTmpl := &x509.Certificate{
		SerialNumber:          randomSerial(),
		Subject:               pkix.Name{CommonName: "Development Worldwide Developer Relations Certification Authority"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	intermediate, err := createCertificate(intermediateTmpl, root, &intermediateKey.PublicKey, rootKey)
	if err != nil {
		return nil, err
	}

	signerKey, err := rsa.GenerateKey(rand.Reader, opts.KeyBits)
	if err != nil {
		return nil, WrapKeyError(err, "failed to generate signer key")
	}
	signerTmpl := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			CommonName:         "Pass Type ID: " + opts.PassTypeIdentifier,
			OrganizationalUnit: []string{opts.TeamIdentifier},
			Organization:       []string{opts.OrganizationName},
			ExtraNames:         []pkix.AttributeTypeAndValue{{Type: oidUserID, Value: opts.PassTypeIdentifier}},
		},
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	signer, err := createCertificate(signerTmpl, intermediate, &signerKey.PublicKey, intermediateKey)
	if err != nil {
		return nil, err
	}

	return &DevChain{
		Root:         root,
		Intermediate: intermediate,
		Signer:       signer,
		SignerKey:    signerKey,
	}, nil
}

// Identity returns the signing identity for the chain.
func (c *DevChain) Identity() *SigningIdentity {
	return &SigningIdentity{
		Certificate:   c.Signer,
		Key:           c.SignerKey,
		Intermediates: []*x509.Certificate{c.Intermediate},
	}
}

// RootPool returns a pool holding the chain root.
func (c *DevChain) RootPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.Root)
	return pool
}

// EncodeCertificatePEM PEM encodes certificates in order
func EncodeCertificatePEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}

func createCertificate(tmpl, parent *x509.Certificate, pub *rsa.PublicKey, signer *rsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	if err != nil {
		return nil, WrapCertificateError(err, "failed to create certificate "+tmpl.Subject.CommonName)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, WrapCertificateError(err, "failed to parse generated certificate")
	}
	return cert, nil
}

func randomSerial() *big.Int {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return serial
}
