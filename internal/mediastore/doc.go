// Package mediastore owns the upload and output directories. It hands
// out collision-free paths for incoming uploads and per-attempt
// transform outputs, and resolves stored paths back to absolute ones.
package mediastore
