//go:build !unix

package preflight

// validateMountPoint is a no-op on platforms without POSIX device numbers
// (this build carries no golang.org/x/sys/windows equivalent of Stat_t.Dev
// wired here; see DESIGN.md).
func validateMountPoint(path string) error {
	return nil
}
