package pingcmd

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// reply is what the parser extracts from one ping invocation's output.
type reply struct {
	From     string
	RTT      time.Duration
	Exceeded bool // hop answered with time-to-live exceeded
}

var (
	// "64 bytes from 203.0.113.7: icmp_seq=1 ttl=117 time=12.4 ms"
	rttRe = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

	// "64 bytes from 203.0.113.7:" / "From 192.0.2.1 icmp_seq=1 ..."
	// "Reply from 203.0.113.7: bytes=32 ...". The address must end in a
	// hex digit so the separator after an IPv6 address is not swallowed.
	fromRe = regexp.MustCompile(`(?i)from ([0-9a-f.:]*[0-9a-f])[:,\s]`)

	// Linux "Time to live exceeded", BSD/macOS the same, Windows
	// "TTL expired in transit".
	exceededRe = regexp.MustCompile(`(?i)time to live exceeded|ttl expired`)
)

// parseOutput scans ping's output for a reply line. It reports ok=false
// when no host answered, which the engine maps to a timed-out result.
func parseOutput(output string) (reply, bool) {
	for _, line := range strings.Split(output, "\n") {
		if m := rttRe.FindStringSubmatch(line); m != nil {
			r := reply{RTT: parseMs(m[1])}
			if fm := fromRe.FindStringSubmatch(line); fm != nil {
				r.From = fm[1]
			}
			return r, true
		}

		if exceededRe.MatchString(line) {
			r := reply{Exceeded: true}
			if fm := fromRe.FindStringSubmatch(line); fm != nil {
				r.From = fm[1]
			}
			return r, true
		}
	}

	return reply{}, false
}

func parseMs(s string) time.Duration {
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}

	return time.Duration(ms * float64(time.Millisecond))
}
