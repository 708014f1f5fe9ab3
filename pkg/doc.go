// Package pkg provides the core libraries of the photobooth.
//
// # Overview
//
// A visit to the booth produces a strip of four photos. The pkg directory
// is organized around that flow:
//
//	camera frames
//	     ↓
//	[capture]   countdown, crop, mirror, scale → still data URLs
//	     ↓
//	[session]   ordered still sequence, handed off as a JSON array
//	     ↓
//	[pipeline]  decode, [composite] into a 500×1500 strip, cache by input hash
//	     ↓
//	[storage]   POST /api/render → Vercel Blob, GridFS or local disk
//	     ↓
//	[share]     retrieval URL and QR code
//
// # Main Packages
//
// [capture] - The capture state machine. A Flow owns one camera and one
// session, runs one shutter cycle at a time, and completes on the fourth
// still.
//
// [session] - The session context object with memory, file and Redis
// backends.
//
// [composite] - Fixed slot geometry, the built-in template and the
// compositing itself.
//
// [pipeline] - Render orchestration shared by the CLI and the HTTP service.
//
// [storage] - Render persistence with remote-first, local-fallback policy.
//
// [server] - The HTTP service: render persistence and browser sessions.
//
// ## Infrastructure
//
// [cache] - Artifact cache (file, Redis, null) and key derivation.
//
// [inflight] - Single-slot tokens that reject duplicate concurrent work.
//
// [observability] - Event hooks for capture, render, storage and cache.
//
// [errors] - Coded errors that map onto HTTP status codes.
//
// [dataurl] - Data URL encoding.
//
// # Testing
//
//	go test ./...                                   # All tests
//	PHOTOBOOTH_TEST_MONGO_URI=mongodb://... go test ./pkg/storage/   # GridFS
package pkg
