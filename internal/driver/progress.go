package driver

import "github.com/schollz/progressbar/v3"

// progressBar is the subset of *progressbar.ProgressBar the scan loop
// needs, narrowed to an interface so tests can run without a real
// terminal-backed bar.
type progressBar interface {
	Add(int) error
}

func newScanProgressBar(total int) progressBar {
	return progressbar.Default(int64(total), "scanning ports")
}
