// Package srt receives transport streams over SRT (Secure Reliable
// Transport), either by accepting publish connections (Server) or by
// pulling from a remote listener (Caller). Received bytes are written into
// the ingest registry.
package srt
