// Command graphd serves a typed graph context store over HTTP.
package main

import "github.com/mesh-intelligence/graphctx/internal/cli"

func main() {
	cli.Execute()
}
