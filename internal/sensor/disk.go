package sensor

import (
	"syscall"

	"codeberg.org/mutker/cpubench/internal/errors"
)

func readDisk(path string) (DiskInfo, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return DiskInfo{}, errors.New().Wrap(ErrReadFailed, err)
	}

	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	used := total - st.Bfree*uint64(st.Bsize)

	info := DiskInfo{
		Path:    path,
		TotalGB: toGB(total),
		UsedGB:  toGB(used),
		FreeGB:  toGB(free),
	}
	if total > 0 {
		info.Percent = float64(used) / float64(total) * 100
	}
	return info, nil
}
