// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentturn is the CLI for the agent turn orchestrator.
//
// Usage:
//
//	agentturn chat --config agentturn.yaml
//	agentturn serve --config agentturn.yaml
//	agentturn validate --config agentturn.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	agentturn "github.com/kadirpekel/agentturn"
)

// CLI defines the command-line interface: top-level Config/LogLevel
// flags shared across every subcommand.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Chat     ChatCmd     `cmd:"" help:"Run an interactive terminal session."`
	Serve    ServeCmd    `cmd:"" help:"Start the remote A2A server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"agentturn.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	info := agentturn.GetVersion()
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	fmt.Println(info.String())
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentturn"),
		kong.Description("Agent turn orchestrator: drives one user turn across a streaming LLM and a pool of side-effectful tools."),
		kong.UsageOnError(),
	)
	setupLogging(cli.LogLevel)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "agentturn:", err)
		os.Exit(exitCodeFor(err))
	}
}
