package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/pingpath/pingpath"
	"github.com/pingpath/pingpath/icmpengine"
	"github.com/pingpath/pingpath/monitor"
	_ "github.com/pingpath/pingpath/pingcmd"
)

type unit struct {
	host    string
	remote  *net.IPAddr
	display string
}

var opts = struct {
	timeout  time.Duration
	interval time.Duration
	size     uint
}{
	timeout:  1000 * time.Millisecond,
	interval: 1000 * time.Millisecond,
	size:     56,
}

func main() {
	flag.DurationVar(&opts.timeout, "timeout", opts.timeout, "timeout for a single echo request")
	flag.DurationVar(&opts.interval, "interval", opts.interval, "polling interval")
	flag.UintVar(&opts.size, "size", opts.size, "size of additional payload data")
	flag.Parse()

	log.SetFlags(0)

	if flag.NArg() == 0 {
		fmt.Println("Usage:", os.Args[0], "[options] target1 target2 ...")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var units []*unit
	for _, arg := range flag.Args() {
		remote, err := net.ResolveIPAddr("ip4", arg)
		if err != nil {
			log.Printf("host %s: %v", arg, err)
			continue
		}

		u := &unit{host: arg, remote: remote}
		if arg == remote.String() {
			u.display = arg
		} else {
			u.display = fmt.Sprintf("%s (%s)", arg, remote)
		}
		units = append(units, u)
	}

	if len(units) == 0 {
		log.Fatal("no targets resolved")
	}

	factory := pingpath.DefaultFactory()
	if factory == nil {
		log.Fatal("no ping engine available on this system")
	}
	log.Printf("using %s", factory.Description())

	engine, err := factory.CreateEngine(pingpath.IPv4)
	if err != nil {
		log.Fatalf("unable to create engine: %v", err)
	}
	defer factory.DeleteEngine(engine)

	engine.SetInterval(opts.interval)
	engine.SetTimeout(opts.timeout)
	if e, ok := engine.(*icmpengine.Engine); ok {
		e.SetPayloadSize(uint16(opts.size))
	}

	for _, u := range units {
		if _, err := engine.AddTarget(u.remote, 0); err != nil {
			log.Fatalf("unable to add %s: %v", u.display, err)
		}
	}

	mon := monitor.New(engine)

	if err := engine.Start(); err != nil {
		log.Fatalf("unable to start engine: %v", err)
	}

	ui := buildTUI(units, mon)
	go ui.update(opts.interval)

	if err := ui.Run(); err != nil {
		panic(err)
	}
}
