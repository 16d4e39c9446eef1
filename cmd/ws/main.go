package main

import (
	"os"

	"github.com/hpcws/ws/internal/diag"
	"github.com/hpcws/ws/internal/wserrors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		diag.Errorf("%v", err)
		os.Exit(wserrors.ExitCode(err))
	}
}
