package pingcmd

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/pingpath/pingpath"
)

// pingBinary is the executable looked up on PATH. Variable so tests can
// point it at a stub.
var pingBinary = "ping"

// commandArgs builds the platform flavour of a one-packet ping
// invocation. The flag spellings differ per OS, most notably the
// time-to-live flag (-t on Linux, -m on the BSDs and macOS, -i on
// Windows).
func commandArgs(goos string, version pingpath.IPVersion, addr *net.IPAddr, ttl int, timeout time.Duration) []string {
	var args []string

	switch goos {
	case "windows":
		args = append(args, "-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10))
		if ttl > 0 {
			args = append(args, "-i", strconv.Itoa(ttl))
		}
		if version == pingpath.IPv6 {
			args = append(args, "-6")
		}

	case "darwin", "freebsd", "openbsd", "netbsd":
		args = append(args, "-n", "-c", "1", "-W", strconv.FormatInt(timeout.Milliseconds(), 10))
		if ttl > 0 {
			args = append(args, "-m", strconv.Itoa(ttl))
		}

	default: // linux and friends, iputils
		seconds := int(timeout / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		args = append(args, "-n", "-c", "1", "-W", strconv.Itoa(seconds))
		if ttl > 0 {
			args = append(args, "-t", strconv.Itoa(ttl))
		}
		if version == pingpath.IPv6 {
			args = append(args, "-6")
		}
	}

	return append(args, addr.String())
}

// runPing executes one ping and returns its combined output. The child
// is bounded by ctx, so a wedged binary cannot outlive the engine.
func runPing(ctx context.Context, version pingpath.IPVersion, addr *net.IPAddr, ttl int, timeout time.Duration) (string, error) {
	args := commandArgs(runtime.GOOS, version, addr, ttl, timeout)

	cmd := exec.CommandContext(ctx, pingBinary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		// Exit status 1 on a lost packet is expected; the parser
		// decides from the output, not the exit code.
		if _, ok := err.(*exec.ExitError); ok {
			return string(output), nil
		}
		return string(output), fmt.Errorf("%s: %w", pingBinary, err)
	}

	return string(output), nil
}
