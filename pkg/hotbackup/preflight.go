package hotbackup

import (
	"github.com/paulschiretz/hotbackup/pkg/platform"
	"github.com/paulschiretz/hotbackup/pkg/preflight"
)

// checkPreflight validates the source and destination before any engine
// state is created: source must exist and be a directory; destination
// must exist, be a directory, and be empty.
func checkPreflight(sourceCanon, destCanon string) error {
	if err := preflight.CheckSourceAccessible(sourceCanon); err != nil {
		return err
	}
	return preflight.CheckDestinationReady(destCanon)
}

// dirMode returns the permission new destination directories are created
// with: 0777 with the process umask applied.
func dirMode() uint32 {
	return platform.DirMode()
}
