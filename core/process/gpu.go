package process

import (
	"os"
	"os/exec"
)

// GPUAvailable reports whether a GPU looks usable on this host: passes if
// /dev/nvidia0 exists, CUDA_VISIBLE_DEVICES is set, or nvidia-smi exits
// zero.
func GPUAvailable() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		return true
	}
	if path, err := exec.LookPath("nvidia-smi"); err == nil {
		if err := exec.Command(path).Run(); err == nil {
			return true
		}
	}
	return false
}
