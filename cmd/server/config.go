package main

import "time"

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=5000"`
	PortSearchRange      int           `env:"PORT_SEARCH_RANGE,default=10"`
	MaxConnections       int           `env:"MAX_CONNECTIONS,default=1024"`
	ReadIdleTimeout      time.Duration `env:"READ_IDLE_TIMEOUT,default=60s"`
	MaxFrameSize         int           `env:"MAX_FRAME_SIZE,default=1048576"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=32"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=info"`
	// CensoredWords is a comma-separated blacklist; empty disables
	// moderation.
	CensoredWords string `env:"CENSORED_WORDS"`
	// DebugPort serves /inspect and /metrics when non-zero.
	DebugPort int `env:"DEBUG_PORT,default=0"`
}
