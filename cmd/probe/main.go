package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/pingpath/pingpath"
	_ "github.com/pingpath/pingpath/icmpengine"
	_ "github.com/pingpath/pingpath/pingcmd"
)

func main() {
	var ttl int
	var timeout time.Duration

	flag.IntVar(&ttl, "ttl", 0, "time to live (0 keeps the socket default)")
	flag.DurationVar(&timeout, "timeout", 3*time.Second, "timeout for the probe")
	flag.Parse()

	log.SetFlags(0)

	if flag.NArg() != 1 {
		fmt.Println("Usage:", os.Args[0], "[options] host")
		flag.PrintDefaults()
		os.Exit(1)
	}

	remote, err := net.ResolveIPAddr("ip4", flag.Arg(0))
	if err != nil {
		log.Fatalf("host %s: %v", flag.Arg(0), err)
	}

	factory := pingpath.DefaultFactory()
	if factory == nil {
		log.Fatal("no ping engine available on this system")
	}

	engine, err := factory.CreateEngine(pingpath.IPv4)
	if err != nil {
		log.Fatalf("unable to create engine: %v", err)
	}
	defer factory.DeleteEngine(engine)

	result, err := engine.SingleShot(remote, ttl, timeout)
	if err != nil {
		log.Fatalf("probe failed: %v", err)
	}

	if result.TimedOut {
		fmt.Println("no reply from", remote)
		os.Exit(1)
	}

	fmt.Printf("reply from %s: time=%v\n", result.ReplyFrom, result.RTT)
}
