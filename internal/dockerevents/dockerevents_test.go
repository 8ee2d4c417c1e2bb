package dockerevents

import (
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/network"
)

func TestConfigSetDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()

	if cfg.ReconnectBase != time.Second {
		t.Errorf("ReconnectBase = %v, want 1s", cfg.ReconnectBase)
	}
	if cfg.ReconnectCap != 30*time.Second {
		t.Errorf("ReconnectCap = %v, want 30s", cfg.ReconnectCap)
	}
}

func TestBackoffCapsAndJitters(t *testing.T) {
	l := &Listener{cfg: Config{ReconnectBase: time.Second, ReconnectCap: 10 * time.Second}}

	for attempt := 0; attempt < 20; attempt++ {
		d := l.backoff(attempt)
		if d < 0 {
			t.Fatalf("attempt %d: backoff went negative: %v", attempt, d)
		}
		max := 11 * time.Second // cap + 10% jitter headroom
		if d > max {
			t.Errorf("attempt %d: backoff = %v, want <= %v", attempt, d, max)
		}
	}
}

func TestEventFilters(t *testing.T) {
	if got := eventFilters(""); got != `{"type":["container"]}` {
		t.Errorf("eventFilters(\"\") = %q", got)
	}
	if got := eventFilters("proxynet"); got != `{"type":["container"],"network":["proxynet"]}` {
		t.Errorf("eventFilters(\"proxynet\") = %q", got)
	}
}

func TestContainerAddressPrefersNamedNetwork(t *testing.T) {
	c := dockertypes.Container{
		NetworkSettings: &dockertypes.SummaryNetworkSettings{
			Networks: map[string]*network.EndpointSettings{
				"bridge":   {IPAddress: "172.17.0.2"},
				"proxynet": {IPAddress: "10.0.0.5"},
			},
		},
	}

	if got := containerAddress(c, "proxynet"); got != "10.0.0.5" {
		t.Errorf("containerAddress(proxynet) = %q, want 10.0.0.5", got)
	}
	if got := containerAddress(c, "missing"); got != "" {
		t.Errorf("containerAddress(missing) = %q, want empty", got)
	}
}

func TestContainerAddressFallsBackToAnyNetwork(t *testing.T) {
	c := dockertypes.Container{
		NetworkSettings: &dockertypes.SummaryNetworkSettings{
			Networks: map[string]*network.EndpointSettings{
				"bridge": {IPAddress: "172.17.0.2"},
			},
		},
	}

	if got := containerAddress(c, ""); got != "172.17.0.2" {
		t.Errorf("containerAddress(\"\") = %q, want 172.17.0.2", got)
	}
}

func TestContainerAddressNoNetworkSettings(t *testing.T) {
	if got := containerAddress(dockertypes.Container{}, ""); got != "" {
		t.Errorf("containerAddress with nil NetworkSettings = %q, want empty", got)
	}
}

func TestToAggregatorInputs(t *testing.T) {
	containers := []Container{
		{ID: "c1", Name: "web", CreatedAt: 100, Address: "10.0.0.1", Labels: map[string]string{"a": "b"}},
	}

	got := ToAggregatorInputs(containers)
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].ID != "c1" || got[0].Address != "10.0.0.1" {
		t.Errorf("got[0] = %+v", got[0])
	}
}
