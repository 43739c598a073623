package pingcmd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pingpath/pingpath"
)

var cmdTarget = &net.IPAddr{IP: net.ParseIP("203.0.113.7")}

func TestCommandArgsLinux(t *testing.T) {
	assert := assert.New(t)

	args := commandArgs("linux", pingpath.IPv4, cmdTarget, 5, 2*time.Second)
	assert.Equal([]string{"-n", "-c", "1", "-W", "2", "-t", "5", "203.0.113.7"}, args)

	// TTL 0 keeps the socket default.
	args = commandArgs("linux", pingpath.IPv4, cmdTarget, 0, 2*time.Second)
	assert.Equal([]string{"-n", "-c", "1", "-W", "2", "203.0.113.7"}, args)

	// Sub-second timeouts round up, iputils takes whole seconds.
	args = commandArgs("linux", pingpath.IPv4, cmdTarget, 0, 300*time.Millisecond)
	assert.Contains(args, "1")
}

func TestCommandArgsLinuxIPv6(t *testing.T) {
	v6 := &net.IPAddr{IP: net.ParseIP("2001:db8::1")}

	args := commandArgs("linux", pingpath.IPv6, v6, 0, time.Second)
	assert.Contains(t, args, "-6")
	assert.Equal(t, "2001:db8::1", args[len(args)-1])
}

func TestCommandArgsDarwin(t *testing.T) {
	args := commandArgs("darwin", pingpath.IPv4, cmdTarget, 3, 2*time.Second)
	assert.Equal(t, []string{"-n", "-c", "1", "-W", "2000", "-m", "3", "203.0.113.7"}, args)
}

func TestCommandArgsWindows(t *testing.T) {
	args := commandArgs("windows", pingpath.IPv4, cmdTarget, 7, 1500*time.Millisecond)
	assert.Equal(t, []string{"-n", "1", "-w", "1500", "-i", "7", "203.0.113.7"}, args)
}
