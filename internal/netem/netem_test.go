package netem

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines []string
	fail  string
}

func (r *recorder) run(_ context.Context, name string, args ...string) error {
	line := name + " " + strings.Join(args, " ")
	r.lines = append(r.lines, line)
	if r.fail != "" && strings.Contains(line, r.fail) {
		return errors.New("exit status 2")
	}
	return nil
}

func TestApplyEgressUnlimited(t *testing.T) {
	r := &recorder{}
	m := New(r.run)
	err := m.Apply(context.Background(), Scenario{
		Dev:    "veth1",
		Egress: true,
		Delay:  20 * time.Millisecond,
		Jitter: 1500 * time.Microsecond,
		Loss:   0.05,
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"tc qdisc del dev veth1 root",
		"tc qdisc add dev veth1 root handle 10: netem delay 20.00ms 1.50ms loss 5.000%",
	}, r.lines)
}

func TestApplyRateLimitedWithReorder(t *testing.T) {
	r := &recorder{}
	m := New(r.run)
	err := m.Apply(context.Background(), Scenario{
		Dev:      "eth0",
		Egress:   true,
		RateMbps: 50,
		Reorder:  0.1,
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"tc qdisc del dev eth0 root",
		"tc qdisc add dev eth0 root handle 1: htb default 1",
		"tc class replace dev eth0 parent 1: classid 1:1 htb rate 50mbit ceil 50mbit",
		"tc qdisc add dev eth0 parent 1:1 handle 100: netem delay 0.00ms 0.00ms loss 0.000% reorder 10.00% gap 5",
	}, r.lines)
}

func TestApplyIngressAndCleanup(t *testing.T) {
	r := &recorder{}
	m := New(r.run)
	require.NoError(t, m.Apply(context.Background(), Scenario{Dev: "veth1", Ingress: true, Loss: 0.3}))
	require.Contains(t, r.lines, "ip link set ifb0 up")
	require.Contains(t, r.lines, "tc qdisc replace dev veth1 handle ffff: ingress")
	require.Contains(t, r.lines, "tc qdisc add dev ifb0 root handle 10: netem delay 0.00ms 0.00ms loss 30.000%")

	r.lines = nil
	require.NoError(t, m.Cleanup(context.Background()))
	require.Equal(t, []string{
		"tc qdisc del dev veth1 root",
		"tc qdisc del dev veth1 ingress",
		"tc qdisc del dev ifb0 root",
		"ip link set ifb0 down",
		"ip link del ifb0",
	}, r.lines)

	// Nothing left to remove.
	r.lines = nil
	require.NoError(t, m.Cleanup(context.Background()))
	require.Empty(t, r.lines)
}

func TestApplyErrors(t *testing.T) {
	m := New((&recorder{}).run)
	require.Error(t, m.Apply(context.Background(), Scenario{Egress: true}))
	require.Error(t, m.Apply(context.Background(), Scenario{Dev: "eth0", Loss: 1.5}))

	r := &recorder{fail: "htb default"}
	m = New(r.run)
	err := m.Apply(context.Background(), Scenario{Dev: "eth0", Egress: true, RateMbps: 10})
	require.ErrorContains(t, err, "exit status 2")
	require.Len(t, r.lines, 2)
}
