//go:build unix

package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// validateMountPoint stats path with unix.Stat and fails only if that stat
// fails for a reason other than the path not existing. It does not compare
// device numbers with the parent directory and does not consult the mount
// table, so a directory whose filesystem was never mounted passes.
func validateMountPoint(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}
	return nil
}
