// Package main ellctl 命令行入口
package main

import "ell-intel-api/internal/interfaces/cli"

func main() {
	cli.Execute()
}
