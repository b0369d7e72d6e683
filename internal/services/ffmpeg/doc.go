// Package ffmpeg wraps the external ffmpeg binary as a bounded subprocess
// with a fixed transcoding profile. Failures carry the tail of the
// process's stderr so a stuck item can be diagnosed from the status logs.
package ffmpeg
