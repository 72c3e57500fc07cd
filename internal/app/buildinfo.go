package app

// Build metadata injected at link time via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/regwatch/docpipe/internal/app.BuildVersion=v1.2.0"
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)
