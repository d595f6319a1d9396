// Package services provides the external integrations used by the pass server.
//
// The pass issuance handler talks to these collaborators through narrow interfaces:
//   - Mailer delivers the issued pass (as a download link or an attachment) to the recipient.
//   - ImageFetcher resolves the student photo supplied with the request to raw bytes.
//
// Each service has a production implementation and a local one, selected via configuration
// in NewServices.
package services
