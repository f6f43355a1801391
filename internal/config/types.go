package config

// DefaultPort is the TCP port the log server listens on.
const DefaultPort = 20200

// MaxChunkSize caps server.chunk_size; a chunk is a single write attempt.
const MaxChunkSize = 1 << 20

// ValidLogLevels lists the zap levels accepted by logging.level.
var ValidLogLevels = map[string]bool{
	"debug":  true,
	"info":   true,
	"warn":   true,
	"error":  true,
	"dpanic": true,
	"panic":  true,
	"fatal":  true,
}
