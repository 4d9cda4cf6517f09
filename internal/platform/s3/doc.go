// Package s3 provides a client for S3-compatible object storage.
//
// Installer payloads can be published as s3://bucket/key archives and are
// downloaded before installation. Run reports are uploaded to the bucket
// configured under report.s3.
package s3
