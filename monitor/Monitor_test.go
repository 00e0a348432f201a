package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gooption/agent"
)

// statAgent is a stub agent reporting a fixed set of statistics
type statAgent struct {
	stats []agent.Stat
}

func (s *statAgent) Act(obs mat.Vector) (int, error) { return 0, nil }

func (s *statAgent) Observe(obs mat.Vector, reward float64, done,
	reset bool) error {
	return nil
}

func (s *statAgent) Save(dirname string) error { return nil }
func (s *statAgent) Load(dirname string) error { return nil }
func (s *statAgent) Statistics() []agent.Stat  { return s.stats }
func (s *statAgent) Eval()                     {}
func (s *statAgent) Train()                    {}
func (s *statAgent) IsEval() bool              { return false }

func TestPollEmitsStatistics(t *testing.T) {
	a := &statAgent{stats: []agent.Stat{{Name: "epsilon", Value: 0.5}}}
	done := make(chan struct{})

	out := Poll(done, a, time.Millisecond)

	select {
	case stats := <-out:
		if len(stats) != 1 || stats[0].Name != "epsilon" ||
			stats[0].Value != 0.5 {
			t.Errorf("wrong statistics batch \n\twant(%v)\n\thave(%v)",
				a.stats, stats)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a statistics batch")
	}

	// Batches may already be in flight; drain until the close is
	// observed
	close(done)
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the channel to close")
		}
	}
}

func TestMonitorStreamsStatistics(t *testing.T) {
	stats := make(chan []agent.Stat)
	m := New("", stats)
	defer m.Close()

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/statistics"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	want := []agent.Stat{
		{Name: "epsilon", Value: 0.25},
		{Name: "steps", Value: 100},
	}
	go func() { stats <- want }()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	var have []agent.Stat
	err = ws.ReadJSON(&have)
	if err != nil {
		t.Fatal(err)
	}

	if len(have) != len(want) {
		t.Fatalf("wrong batch size \n\twant(%v)\n\thave(%v)", len(want),
			len(have))
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf("wrong statistic at index %v \n\twant(%v)\n\thave(%v)",
				i, want[i], have[i])
		}
	}
}

func TestMonitorClosesClientOnClose(t *testing.T) {
	stats := make(chan []agent.Stat)
	m := New("", stats)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/statistics"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	m.Close()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = ws.ReadMessage()
	if err == nil {
		t.Fatal("expected the connection to close")
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected a normal closure \n\thave(%v)", err)
	}
}
