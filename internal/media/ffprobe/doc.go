// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Ingestion uses it to read the container duration and to confirm an
// upload actually carries a video stream before an artifact is created.
package ffprobe
