package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/pingpath/pingpath"
	_ "github.com/pingpath/pingpath/icmpengine"
	_ "github.com/pingpath/pingpath/pingcmd"
	"github.com/pingpath/pingpath/route"
)

func main() {
	var maxHops int
	var window int
	var timeout time.Duration

	flag.IntVar(&maxHops, "maxhops", route.DefaultMaxHops, "maximum number of hops to probe")
	flag.IntVar(&window, "window", route.DefaultWindow, "number of concurrent hop probes")
	flag.DurationVar(&timeout, "timeout", route.DefaultTimeout, "timeout per hop probe")
	flag.Parse()

	log.SetFlags(0)

	if flag.NArg() != 1 {
		fmt.Println("Usage:", os.Args[0], "[options] host")
		flag.PrintDefaults()
		os.Exit(1)
	}
	host := flag.Arg(0)

	factory := pingpath.DefaultFactory()
	if factory == nil {
		log.Fatal("no ping engine available on this system")
	}

	pinger, err := factory.CreateEngine(pingpath.IPv4)
	if err != nil {
		log.Fatalf("unable to create engine: %v", err)
	}
	defer factory.DeleteEngine(pinger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	bar := pb.StartNew(maxHops)
	bar.ShowTimeLeft = false

	engine := route.NewEngine(pinger)
	engine.MaxHops = maxHops
	engine.Window = window
	engine.Timeout = timeout
	engine.Callback = func(route.Hop) { bar.Increment() }

	discovered, err := engine.Discover(ctx, host)
	bar.Finish()
	if err != nil {
		log.Fatalf("trace to %s: %v", host, err)
	}

	fmt.Printf("route to %s (%d hops", discovered.Target, len(discovered.Hops))
	if !discovered.Complete() {
		fmt.Print(", destination not reached")
	}
	fmt.Println("):")

	for _, hop := range discovered.Hops {
		fmt.Println(hop)
	}
}
