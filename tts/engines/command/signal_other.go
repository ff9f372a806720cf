//go:build !unix

package command

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pausing speech is not supported on this platform")

func suspend(*os.Process) error { return errPauseUnsupported }

func resume(*os.Process) error { return errPauseUnsupported }
