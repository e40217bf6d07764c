package rpc

import "time"

// unixSeconds encodes a timestamp the way every RPC view does: as whole
// Unix seconds, not an RFC3339 string.
func unixSeconds(t time.Time) int64 {
	return t.Unix()
}

// unixSecondsPtr is unixSeconds for an optional timestamp, preserving nil.
func unixSecondsPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	s := t.Unix()
	return &s
}
