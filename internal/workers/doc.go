// Package workers runs the fixed pool of transform consumers and the
// watchdog. Each worker claims one job at a time, heartbeats its lease
// while ffmpeg runs, and settles the outcome through the pipeline
// coordinator. The watchdog sweeps jobs that exhausted their attempts
// or overstayed the processing ceiling.
package workers
