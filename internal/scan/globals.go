package scan

import (
	"sync"

	"dupfind/internal/logging"
)

// Set at build time with -ldflags "-X dupfind/internal/scan.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const readBufferSize = 64 * 1024

// Read buffers shared by hashing workers
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, readBufferSize)
		return &buf
	},
}

func logDebug(format string, args ...interface{}) {
	logging.Debug(format, args...)
}

func logInfo(format string, args ...interface{}) {
	logging.Info(format, args...)
}

func logWarning(format string, args ...interface{}) {
	logging.Warning(format, args...)
}

func logError(format string, args ...interface{}) {
	logging.Error(format, args...)
}
