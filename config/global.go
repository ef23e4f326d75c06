package config

import (
	"log/slog"
	"strings"

	"markertransfer/native/common"
)

// Runtime converts the quota section into the form enforced by the node.
func (q Quota) Runtime() common.Quota {
	return common.Quota{MaxRequestsPerEpoch: q.MaxRequestsPerEpoch, EpochSeconds: q.EpochSeconds}
}

// SlogLevel parses Level; unknown values fall back to info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
