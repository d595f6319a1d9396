package pkpass

import (
	"crypto/x509"

	"go.mozilla.org/pkcs7"
)

// SignManifest returns a detached PKCS#7 signature (DER) over manifestJSON.
// The signer certificate and the identity intermediates are embedded in the signature.
func SignManifest(manifestJSON []byte, identity *SigningIdentity) ([]byte, error) {
	signedData, err := pkcs7.NewSignedData(manifestJSON)
	if err != nil {
		return nil, WrapSignatureError(err, "failed to initialise signed data")
	}
	signedData.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := signedData.AddSignerChain(identity.Certificate, identity.Key, identity.Intermediates, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, WrapSignatureError(err, "failed to add signer")
	}

	signedData.Detach()

	der, err := signedData.Finish()
	if err != nil {
		return nil, WrapSignatureError(err, "failed to finish signature")
	}
	return der, nil
}

// VerifyManifestSignature verifies a detached signature over manifestJSON.
// When roots is nil only the signature itself is checked, not the certificate chain.
func VerifyManifestSignature(manifestJSON, signature []byte, roots *x509.CertPool) (*x509.Certificate, error) {
	p7, err := pkcs7.Parse(signature)
	if err != nil {
		return nil, WrapSignatureError(err, "failed to parse signature")
	}
	p7.Content = manifestJSON

	if roots == nil {
		err = p7.Verify()
	} else {
		err = p7.VerifyWithChain(roots)
	}
	if err != nil {
		return nil, WrapSignatureError(err, "signature verification failed")
	}

	signer := p7.GetOnlySigner()
	if signer == nil {
		return nil, NewSignatureError("signature must have exactly one signer")
	}
	return signer, nil
}
