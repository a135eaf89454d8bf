package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFontFile verifies the subtitle overlay font is a readable file.
func CheckFontFile(path string) Result {
	const name = "Subtitle font"
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: path}
}

// CheckFreeDisk verifies the filesystem holding path has at least
// minMegabytes available for transform outputs.
func CheckFreeDisk(path string, minMegabytes int) Result {
	const name = "Free disk space"
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	availableMB := stat.Bavail * uint64(stat.Bsize) / (1024 * 1024)
	if availableMB < uint64(minMegabytes) {
		return Result{Name: name, Detail: fmt.Sprintf("%d MB available, %d MB required", availableMB, minMegabytes)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d MB available", availableMB)}
}
