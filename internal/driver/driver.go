// Package driver implements the top-level orchestration spec.md §5 and §6
// describe (C10): run the port scan when requested, then read usernames
// from standard input and probe each one against every verified port,
// printing the two-line-format results spec.md §6 specifies and flushing
// the fingerprint report at shutdown. Grounded on Main.cpp's control flow:
// a scan loop building a verified-port list, followed by a per-line stdin
// loop that probes each username against each verified port.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zmap/sshuserenum/internal/config"
	"github.com/zmap/sshuserenum/internal/fingerprint"
	"github.com/zmap/sshuserenum/internal/knownhosts"
	"github.com/zmap/sshuserenum/internal/metrics"
	"github.com/zmap/sshuserenum/internal/netutil"
	"github.com/zmap/sshuserenum/internal/portscan"
	"github.com/zmap/sshuserenum/internal/sshproto"
	"github.com/zmap/sshuserenum/internal/sshtransport"
)

// Driver holds every collaborator the run loop needs, assembled once by
// cmd/sshuserenum/main.go from Parsed config.
type Driver struct {
	Cfg     *config.Parsed
	Log     *logrus.Logger
	Hosts   *knownhosts.Store
	Tally   *fingerprint.Tally
	Metrics *metrics.Recorder

	Stdin  io.Reader
	Stdout io.Writer

	// normalizedHost is the IDNA-normalized form of Cfg.Host, used as the
	// known-hosts key so punycode and Unicode spellings of the same target
	// share one entry. resolvedAddr is the IP that hostname resolved to,
	// used to dial every port so the scan and probe phases hit the same
	// host even if DNS answers differently between them. Both are set once
	// by resolveTarget at the start of Run.
	normalizedHost string
	resolvedAddr   string

	// Resolver performs the one-time lookup resolveTarget issues. Exposed
	// so tests can substitute a resolver that never touches the network.
	Resolver *netutil.Resolver
}

// New builds a Driver from resolved configuration, wiring a known-hosts
// store at the default path and a disabled fingerprint tally unless
// cfg.FprintPath was set.
func New(cfg *config.Parsed, log *logrus.Logger) (*Driver, error) {
	hostsPath, err := knownhosts.DefaultPath()
	if err != nil {
		return nil, err
	}
	d := &Driver{
		Cfg:      cfg,
		Log:      log,
		Hosts:    knownhosts.New(hostsPath),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Resolver: netutil.DefaultResolver(),
	}
	d.Hosts.Log = log.WithField("component", "knownhosts")

	if cfg.FprintPath != "" {
		db, err := fingerprint.Load(cfg.FprintPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		d.Tally = fingerprint.NewTally(db)
	}
	return d, nil
}

// Run executes the scan phase (if configured) and the user-enumeration
// phase (unless -n/ScanOnly was set), in that order, matching Main.cpp's
// control flow of scan-then-enumerate.
func (d *Driver) Run() error {
	if err := d.resolveTarget(); err != nil {
		return err
	}

	var verifiedPorts []int

	if d.Cfg.ScanMode {
		results := d.runScan()
		verifiedPorts = verifiedPortNumbers(results)
	} else {
		verifiedPorts = []int{d.Cfg.Port}
	}

	if d.Cfg.ScanOnly {
		return nil
	}
	if len(verifiedPorts) == 0 {
		d.Log.Warn("no verified ports; skipping user enumeration")
		return nil
	}

	err := d.runEnumeration(verifiedPorts)
	if d.Tally != nil && d.Cfg.FprintPath != "" {
		d.printFingerprintReport()
	}
	return err
}

// resolveTarget normalizes Cfg.Host to its ASCII (IDNA) form and resolves it
// to an IP exactly once per run, per SPEC_FULL.md §4.8/§4.11: every
// subsequent dial (scan and probe alike) targets the resolved IP, and every
// known-hosts lookup keys off the normalized hostname rather than the IP, so
// rotating DNS answers within one run never split a host across two
// known-hosts entries.
func (d *Driver) resolveTarget() error {
	normalized, err := netutil.NormalizeHost(d.Cfg.Host)
	if err != nil {
		return sshproto.NewError(sshproto.KindConfigError, "normalizing target hostname: "+err.Error())
	}
	ip, err := d.Resolver.Resolve(context.Background(), normalized)
	if err != nil {
		return sshproto.NewError(sshproto.KindIOOther, "resolving target hostname: "+err.Error())
	}
	d.normalizedHost = normalized
	d.resolvedAddr = ip.String()
	return nil
}

func (d *Driver) runScan() []portscan.Result {
	var bar progressBar
	if !d.Cfg.NoProgress {
		bar = newScanProgressBar(d.Cfg.MaxPort - d.Cfg.MinPort + 1)
	}

	results, _ := portscan.ScanRange(d.resolvedAddr, d.Cfg.MinPort, d.Cfg.MaxPort, d.Cfg.Timeout, d.Cfg.BannerRe, bar, func(res portscan.Result) {
		fmt.Fprintln(d.Stdout, res.String())
		if d.Metrics != nil {
			d.Metrics.ScanPortTotal.WithLabelValues(scanResultLabel(res.Tag)).Inc()
		}
	})
	return results
}

// scanResultLabel maps a portscan.Tag onto the sshuserenum_scan_ports_total
// result label set SPEC_FULL.md §4.13 documents.
func scanResultLabel(tag portscan.Tag) string {
	switch tag {
	case portscan.TagVerified:
		return "verified"
	case portscan.TagNotVerified:
		return "notverified"
	case portscan.TagNoPortAddr:
		return "no_port_addr"
	case portscan.TagTimeExceed:
		return "timeout"
	default:
		return string(tag)
	}
}

func verifiedPortNumbers(results []portscan.Result) []int {
	var ports []int
	for _, r := range results {
		if r.Tag == portscan.TagVerified {
			ports = append(ports, r.Port)
		}
	}
	return ports
}

// runEnumeration reads usernames from Stdin, skipping blank lines per
// spec.md §6, and probes each one against every verified port.
func (d *Driver) runEnumeration(ports []int) error {
	sc := bufio.NewScanner(d.Stdin)
	for sc.Scan() {
		user := sc.Text()
		if user == "" {
			continue
		}
		for _, port := range ports {
			d.probeOne(user, port)
		}
	}
	if err := sc.Err(); err != nil {
		return sshproto.NewError(sshproto.KindIOOther, "reading username list: "+err.Error())
	}
	return nil
}

func (d *Driver) probeOne(user string, port int) {
	start := time.Now()
	outcome, err := d.probe(user, port)
	if d.Metrics != nil {
		d.Metrics.ProbeDuration.Observe(time.Since(start).Seconds())
		d.Metrics.ProbesTotal.WithLabelValues(probeResultLabel(outcome, err)).Inc()
	}

	if err != nil {
		d.Log.WithError(err).WithFields(logrus.Fields{"user": user, "port": port}).Debug("probe failed")
	}
	if outcome == sshtransport.OutcomePresent {
		fmt.Fprintf(d.Stdout, "%s:OK\n", user)
		if d.Tally != nil {
			d.Tally.Insert(user)
		}
	} else {
		fmt.Fprintf(d.Stdout, "%s:NOK\n", user)
	}
}

// probeResultLabel maps a probe's outcome onto the sshuserenum_probes_total
// result label set SPEC_FULL.md §4.13 documents: "unknown" takes priority
// over the oracle's own verdict whenever the probe ended in an error, since
// a failed connection or handshake never reached a trustworthy classification.
func probeResultLabel(outcome sshtransport.ProbeOutcome, err error) string {
	if err != nil {
		return "unknown"
	}
	if outcome == sshtransport.OutcomePresent {
		return "ok"
	}
	return "nok"
}

// probe dials one TCP connection, runs the full handshake and oracle, and
// always tears the connection down afterward. A failed probe (any error
// kind) is reported as absent to the driver loop, per spec.md §7's
// "errors inside a probe ... reported as NOK" rule — except a connection
// the server closes during the oracle exchange, which sshtransport.Probe
// already turns into OutcomePresent with a nil error before this function
// ever sees it.
func (d *Driver) probe(user string, port int) (sshtransport.ProbeOutcome, error) {
	addr := net.JoinHostPort(d.resolvedAddr, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, d.Cfg.Timeout)
	if err != nil {
		return sshtransport.OutcomeAbsent, sshproto.NewError(sshproto.KindIOOther, err.Error())
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(d.Cfg.Timeout))

	t := sshtransport.New(conn)
	t.SetClientBanner(d.Cfg.ClientID)
	result, err := t.Handshake()
	if err != nil {
		_ = t.Close()
		return sshtransport.OutcomeAbsent, err
	}

	if err := d.verifyHostKey(result); err != nil {
		_ = t.Close()
		return sshtransport.OutcomeAbsent, err
	}

	outcome, err := t.Probe(user)
	_ = t.Disconnect()
	return outcome, err
}

func (d *Driver) verifyHostKey(result *sshtransport.HandshakeResult) error {
	keyBlob := sshproto.Base64Encode(result.HostKey.Blob)
	return d.Hosts.Verify(d.normalizedHost, result.HostKey.KeyType, keyBlob)
}

func (d *Driver) printFingerprintReport() {
	for _, stat := range d.Tally.Report() {
		fmt.Fprintf(d.Stdout, "%d\t%s\n", stat.Count, stat.Label)
	}
}
