// Package netem shapes a Linux interface with tc netem/htb so demo sessions
// can run over real delay, rate limits and loss instead of simulated drops.
package netem

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Scenario describes the impairment applied to one device.
type Scenario struct {
	Dev      string
	Egress   bool
	Ingress  bool // through an IFB device
	Delay    time.Duration
	Jitter   time.Duration
	RateMbps float64 // 0 means unlimited
	Loss     float64 // 0..1
	Reorder  float64 // 0..1
}

// Runner executes one command line.
type Runner func(ctx context.Context, name string, args ...string) error

// Manager applies and removes a Scenario. It is not safe for concurrent use.
type Manager struct {
	run Runner
	dev string
	ifb string
}

// New returns a Manager running tc and ip. A nil run selects os/exec.
func New(run Runner) *Manager {
	if run == nil {
		run = execRun
	}
	return &Manager{run: run}
}

// Apply replaces the qdiscs of s.Dev (and its IFB for ingress) with s.
func (m *Manager) Apply(ctx context.Context, s Scenario) error {
	if s.Dev == "" {
		return fmt.Errorf("netem: device not set")
	}
	if s.Loss < 0 || s.Loss > 1 || s.Reorder < 0 || s.Reorder > 1 {
		return fmt.Errorf("netem: loss %v and reorder %v must be within [0,1]", s.Loss, s.Reorder)
	}
	m.dev = s.Dev
	if s.Egress {
		if err := m.shape(ctx, m.dev, s); err != nil {
			return err
		}
	}
	if s.Ingress {
		if err := m.ensureIFB(ctx); err != nil {
			return err
		}
		if err := m.redirectIngress(ctx); err != nil {
			return err
		}
		if err := m.shape(ctx, m.ifb, s); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup removes everything Apply installed. Errors are ignored since any
// part may be missing.
func (m *Manager) Cleanup(ctx context.Context) error {
	if m.dev == "" {
		return nil
	}
	_ = m.run(ctx, "tc", "qdisc", "del", "dev", m.dev, "root")
	_ = m.run(ctx, "tc", "qdisc", "del", "dev", m.dev, "ingress")
	if m.ifb != "" {
		_ = m.run(ctx, "tc", "qdisc", "del", "dev", m.ifb, "root")
		_ = m.run(ctx, "ip", "link", "set", m.ifb, "down")
		_ = m.run(ctx, "ip", "link", "del", m.ifb)
		m.ifb = ""
	}
	m.dev = ""
	return nil
}

func (m *Manager) shape(ctx context.Context, dev string, s Scenario) error {
	// tc refuses "change" across qdisc kinds, start from a clean root.
	_ = m.run(ctx, "tc", "qdisc", "del", "dev", dev, "root")
	if s.RateMbps <= 0 {
		return m.run(ctx, "tc", netemArgs(dev, []string{"root", "handle", "10:"}, s)...)
	}
	if err := m.run(ctx, "tc", "qdisc", "add", "dev", dev, "root", "handle", "1:", "htb", "default", "1"); err != nil {
		return err
	}
	rate := fmt.Sprintf("%.0fmbit", s.RateMbps)
	if err := m.run(ctx, "tc", "class", "replace", "dev", dev, "parent", "1:", "classid", "1:1", "htb", "rate", rate, "ceil", rate); err != nil {
		return err
	}
	return m.run(ctx, "tc", netemArgs(dev, []string{"parent", "1:1", "handle", "100:"}, s)...)
}

func netemArgs(dev string, at []string, s Scenario) []string {
	args := append([]string{"qdisc", "add", "dev", dev}, at...)
	args = append(args, "netem",
		"delay", ms(s.Delay), ms(s.Jitter),
		"loss", fmt.Sprintf("%.3f%%", s.Loss*100))
	if s.Reorder > 0 {
		args = append(args, "reorder", fmt.Sprintf("%.2f%%", s.Reorder*100), "gap", "5")
	}
	return args
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

func (m *Manager) ensureIFB(ctx context.Context) error {
	m.ifb = "ifb0"
	_ = m.run(ctx, "modprobe", "ifb", "numifbs=1")
	_ = m.run(ctx, "ip", "link", "add", m.ifb, "type", "ifb")
	return m.run(ctx, "ip", "link", "set", m.ifb, "up")
}

func (m *Manager) redirectIngress(ctx context.Context) error {
	if err := m.run(ctx, "tc", "qdisc", "replace", "dev", m.dev, "handle", "ffff:", "ingress"); err != nil {
		return err
	}
	return m.run(ctx, "tc", "filter", "replace", "dev", m.dev, "parent", "ffff:", "protocol", "all",
		"u32", "match", "u32", "0", "0", "action", "mirred", "egress", "redirect", "dev", m.ifb)
}

func execRun(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w\n%s", name, args, err, out)
	}
	return nil
}
