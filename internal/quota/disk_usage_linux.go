package quota

import "syscall"

// diskFree returns the available bytes on the file system containing path.
// statfs is not portable, hence the linux build tag split.
func diskFree(path string) (free uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
