// Package issuance implements the student ID pass issuance endpoint.
//
// A request runs as one linear sequence:
//
//  1. decode and validate the submission (no side effects happen before this succeeds)
//  2. derive the serial number and a fresh authentication token
//  3. resolve the student photo and compose the pass from the model
//  4. serialize and sign the .pkpass archive
//  5. upload it to {schoolYear}/{serialNumber}.pkpass
//  6. upsert the user record keyed by email
//  7. generate a time-limited download link
//  8. email the recipient
//
// The first failure ends the request. There are no retries and earlier side effects are not
// rolled back, so a stored pass may exist without a matching email.
//
// Status codes follow the observed behaviour of the service this endpoint replaces:
// storage failures are 500, email failures 400, and any other failure after validation
// is reported as 200 with the error message (see Options.LegacyStatusCodes).
package issuance
