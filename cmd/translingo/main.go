// Command translingo runs the translation API server and its companion CLI.
//
//	@title						Translingo API
//	@version					1.0
//	@description				Live translation sessions, language selection, and translation history.
//	@license.name				MIT
//	@BasePath					/api/v1
//	@tag.name					Languages
//	@tag.name					Sessions
//	@tag.name					History
package main

import "github.com/tbourn/go-translingo-backend/internal/cli"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.Execute(version)
}
