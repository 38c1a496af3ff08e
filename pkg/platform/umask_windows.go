//go:build windows

package platform

// DirMode: Windows has no umask; ACLs govern access instead. 0777 is
// applied and largely ignored by the runtime's os.Mkdir on this platform.
func DirMode() uint32 {
	return 0o777
}
