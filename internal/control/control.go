// Package control is the receiver's gRPC control endpoint. It publishes the
// session phase through the standard gRPC health service so scripts and
// swif-ctl can wait for a receiver to be ready or finished.
package control

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the health service name of a receiving session.
const Service = "swif.Receiver"

// Phase is the lifecycle stage of a receiving session.
type Phase int

const (
	// PhaseWaiting: listening, no OTI yet.
	PhaseWaiting Phase = iota
	// PhaseReceiving: OTI accepted, symbols flowing.
	PhaseReceiving
	// PhaseDone: the session ended.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseReceiving:
		return "receiving"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) status() healthpb.HealthCheckResponse_ServingStatus {
	switch p {
	case PhaseReceiving:
		return healthpb.HealthCheckResponse_SERVING
	case PhaseDone:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_UNKNOWN
}

// Server serves the health service on a TCP listener.
type Server struct {
	ln     net.Listener
	grpc   *grpc.Server
	health *health.Server
	log    zerolog.Logger
}

// Listen binds addr and registers the health and reflection services. The
// session starts in PhaseWaiting.
func Listen(addr string, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control listen: %w", err)
	}
	s := &Server{
		ln:     ln,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		log:    log.With().Str("component", "control").Logger(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetPhase(PhaseWaiting)
	return s, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve blocks until Stop.
func (s *Server) Serve() error {
	s.log.Info().Stringer("addr", s.ln.Addr()).Msg("control listening")
	if err := s.grpc.Serve(s.ln); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// SetPhase publishes p to health watchers.
func (s *Server) SetPhase(p Phase) {
	s.log.Debug().Stringer("phase", p).Msg("session phase")
	s.health.SetServingStatus(Service, p.status())
}

// Stop marks every service NOT_SERVING and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.Stop()
}

// Dial connects to a control endpoint without transport security.
func Dial(addr string) (*grpc.ClientConn, error) {
	return grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Check returns the current serving status of the receiver session.
func Check(ctx context.Context, cc *grpc.ClientConn) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// WaitFor blocks until the receiver session reports want or ctx ends.
func WaitFor(ctx context.Context, cc *grpc.ClientConn, want healthpb.HealthCheckResponse_ServingStatus) error {
	stream, err := healthpb.NewHealthClient(cc).Watch(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return err
	}
	for {
		resp, err := stream.Recv()
		if err != nil {
			return err
		}
		if resp.GetStatus() == want {
			return nil
		}
	}
}
