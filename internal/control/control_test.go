package control

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestPhaseLifecycle(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	cc, err := Dial(srv.Addr().String())
	require.NoError(t, err)
	defer cc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := Check(ctx, cc)
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, st)

	srv.SetPhase(PhaseReceiving)
	require.NoError(t, WaitFor(ctx, cc, healthpb.HealthCheckResponse_SERVING))

	go srv.SetPhase(PhaseDone)
	require.NoError(t, WaitFor(ctx, cc, healthpb.HealthCheckResponse_NOT_SERVING))

	srv.Stop()
	require.NoError(t, <-served)
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "waiting", PhaseWaiting.String())
	require.Equal(t, "receiving", PhaseReceiving.String())
	require.Equal(t, "done", PhaseDone.String())
	require.Equal(t, "phase(7)", Phase(7).String())
}
