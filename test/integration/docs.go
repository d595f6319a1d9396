// Package integration contains end-to-end tests for pass-server.
//
// The server is started in-process with the real collaborators: a temporary postgres database
// (migrated by the server at startup), file object storage in a temp dir, a development signing
// chain and the SendGrid mailer pointed at a local fake of the SendGrid API.
//
// These tests assume the pkpass, issuance and storage packages are working correctly (tested
// separately). If bugs are introduced in lower-level packages, there will be cascading failures
// here - fix the low-level problems first.
package integration
