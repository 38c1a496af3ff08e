//go:build unix

// Package platform isolates the handful of OS-specific calls the engine
// needs: reading the process umask to compute the 0777&^umask destination
// directory permission.
package platform

import "golang.org/x/sys/unix"

// DirMode returns the mode new destination directories should be created
// with: 0777 with the process umask applied, matching what mkdir(2) itself
// would produce. unix.Umask has no read-only form, so this briefly sets and
// restores the mask.
func DirMode() uint32 {
	mask := unix.Umask(0)
	unix.Umask(mask)
	return uint32(0o777 &^ mask)
}
