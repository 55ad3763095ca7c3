// Package winch holds build metadata shared by the CLI and the MCP server.
package winch

// Version is set at build time via -ldflags "-X github.com/halcyard/winch.Version=v1.0.0"
var Version = "dev"
