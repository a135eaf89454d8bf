// Package transcode wraps the ffmpeg command line for the three
// supported transforms. The invoker is synchronous: it blocks until
// ffmpeg exits, streams stderr lines into the logger, and converts
// failures into typed errors the worker pool can classify for retry.
package transcode
