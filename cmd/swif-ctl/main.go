package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/observe-l/swif/internal/control"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:50051", "receiver control address")
		cmd     = flag.String("cmd", "status", "command: status|wait")
		want    = flag.String("want", "done", "phase to wait for: receiving|done")
		timeout = flag.Duration("timeout", 30*time.Second, "give up after")
	)
	flag.Parse()

	cc, err := control.Dial(*addr)
	if err != nil {
		fatalf("dial %s: %v", *addr, err)
	}
	defer cc.Close()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *cmd {
	case "status":
		st, err := control.Check(ctx, cc)
		if err != nil {
			fatalf("check: %v", err)
		}
		fmt.Println(st)
	case "wait":
		target := healthpb.HealthCheckResponse_NOT_SERVING
		switch *want {
		case "done":
		case "receiving":
			target = healthpb.HealthCheckResponse_SERVING
		default:
			fatalf("unknown phase %q", *want)
		}
		if err := control.WaitFor(ctx, cc, target); err != nil {
			fatalf("wait: %v", err)
		}
		fmt.Println(*want)
	default:
		fatalf("unknown cmd %q", *cmd)
	}
}

func fatalf(f string, a ...any) {
	fmt.Fprintf(os.Stderr, f+"\n", a...)
	os.Exit(1)
}
