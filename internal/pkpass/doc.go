// Package pkpass builds signed Apple Wallet passes.
//
// A pass starts from a Template (a .pass model directory holding pass.json and images),
// is populated with fields, a barcode and extra images, and is then serialized into a
// .pkpass zip archive:
//
//	pass.json      canonical JSON (RFC 8785)
//	manifest.json  SHA-1 digest of every other file
//	signature      detached PKCS#7 signature over manifest.json
//
// Open and Archive.Verify read an archive back and check the manifest and signature.
package pkpass
