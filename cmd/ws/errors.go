package main

import (
	"fmt"

	"github.com/hpcws/ws/internal/wserrors"
)

func errAccessDeniedUserOverride(user string) error {
	return fmt.Errorf("%w: only root may act as another user (%s)", wserrors.AccessDenied, user)
}

func unknownFilesystem(name string) error {
	return fmt.Errorf("%w: unknown filesystem %q", wserrors.NotFound, name)
}
