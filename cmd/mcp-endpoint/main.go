// Command mcp-endpoint runs the WebSocket MCP message router.
package main

import "github.com/sentinel-gate/mcp-endpoint/cmd/mcp-endpoint/cmd"

func main() {
	cmd.Execute()
}
