// Command sshuserenum probes an SSH server for which of a list of
// usernames exist, using the publickey-auth existence oracle spec.md §4.5
// describes, and can optionally banner-scan a port range first. See
// SPEC_FULL.md for the full external interface.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/zmap/sshuserenum/internal/config"
	"github.com/zmap/sshuserenum/internal/driver"
	"github.com/zmap/sshuserenum/internal/metrics"
)

const version = "sshuserenum 1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cfg, err := config.Parse(argv)
	if err != nil {
		if errors.Is(err, config.ErrHelpOrVersion) {
			fmt.Println(version)
			return 0
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	d, err := driver.New(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	if cfg.MetricsAddr != "" {
		rec := metrics.NewRecorder()
		if err := rec.Serve(cfg.MetricsAddr); err != nil {
			log.WithError(err).Warn("metrics listener failed to start")
		} else {
			d.Metrics = rec
		}
	}

	if err := d.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
	return 0
}
