package main

import (
	"github.com/turtacn/keystore/cmd/cli"
)

// main is the entry point for the keystore-admin command-line tool.
// main 是 keystore-admin 命令行工具的入口点。
func main() {
	cli.Execute()
}
