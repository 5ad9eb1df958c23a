package gallery

import (
	"os"
	"runtime"
	"strconv"
)

// workerCount returns the pool size for thumbnail work: the configured value if
// positive, else GALLERY_WORKERS, else one worker per usable CPU.
func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if override := os.Getenv("GALLERY_WORKERS"); override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			return n
		}
	}
	// GOMAXPROCS respects container CPU limits; NumCPU does not.
	return max(1, runtime.GOMAXPROCS(0))
}
