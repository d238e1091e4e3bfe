// Package toolchain downloads, verifies and extracts toolchain archives.
//
// # Security Model
//
// Every archive is hashed with SHA-512 while it streams to disk. The digest
// must match the value published in the environment index before anything
// is unpacked; a mismatching archive is deleted and never extracted.
// Archive entries that would land outside the destination directory are
// rejected.
//
// # Phases
//
// A Pipeline run moves through
//
//	Idle -> Downloading -> Verifying -> Extracting -> PostProcessing -> Done
//
// and ends in Failed from any step. Progress is reported on a 0-99 scale:
// the download phase owns [0, Allocation.Download] and extraction owns the
// rest. Completion clears progress and reports the toolchain directory.
//
// # Architecture
//
//   - Pipeline: the per-install state machine
//   - Downloader: streaming HTTP download with digest and progress
//   - Extractor: zip and tar.gz extraction emitting Events
//   - VerifyDigest: archive integrity check
package toolchain
