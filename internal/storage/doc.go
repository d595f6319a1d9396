// Package storage provides the object storage backends for issued passes.
//
// Two backends are available:
//   - s3: Amazon S3 or an S3 compatible store, read links are presigned GetObject URLs
//   - file: the local filesystem, read links are served by the pass server's /downloads route
//     and authorised with a signed token
//
// Objects are addressed by a relative slash separated path, e.g. "2023-2024/SJ-2023-2024-12345.pkpass".
package storage
