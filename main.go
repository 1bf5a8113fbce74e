package main

import (
	"context"
	"os"

	"github.com/yaklabco/buildhook/cmd/buildhook"
	"github.com/yaklabco/buildhook/pkg/sh"
)

func main() {
	os.Exit(actualMain())
}

func actualMain() int {
	ctx := context.Background()

	rootCmd := buildhook.NewRootCmd(ctx)

	// fang has already reported the error; only the status is left to carry.
	return sh.ExitStatus(buildhook.ExecuteWithFang(ctx, rootCmd))
}
