package artifact

import "golang.org/x/sys/unix"

// DiskFree reports free and total bytes for the filesystem containing path.
func DiskFree(path string) (free uint64, total uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return stat.Bavail * bsize, stat.Blocks * bsize, nil
}
