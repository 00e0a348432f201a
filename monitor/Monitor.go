// Package monitor serves live agent statistics over websockets so that
// training runs can be watched from a dashboard without touching the
// training loop
package monitor

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"

	"github.com/samuelfneumann/gooption/agent"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Send pings to peer with this period
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{}

// Poll reads an agent's statistics every interval and emits each
// reading on the returned channel. The channel closes when done
// closes. Statistics reads are side-effect free, so polling never
// perturbs the agent's schedules.
func Poll(done <-chan struct{}, a agent.Agent,
	interval time.Duration) <-chan []agent.Stat {
	out := make(chan []agent.Stat)
	ticker := channerics.NewTicker(done, interval)

	go func() {
		defer close(out)
		for range ticker {
			select {
			case out <- a.Statistics():
			case <-done:
				return
			}
		}
	}()

	return out
}

// Monitor pushes batches of agent statistics to a websocket client.
// Each batch received on the stats channel is written as a single JSON
// message. The monitor serves one statistics stream; it is intended
// for a single dashboard watching a single training run.
type Monitor struct {
	addr  string
	stats <-chan []agent.Stat
	done  chan struct{}
}

// New returns a Monitor serving on addr the statistics batches
// received on stats
func New(addr string, stats <-chan []agent.Stat) *Monitor {
	return &Monitor{
		addr:  addr,
		stats: stats,
		done:  make(chan struct{}),
	}
}

// Serve runs the monitor's HTTP server until Close is called. The
// statistics stream is exposed at /statistics.
func (m *Monitor) Serve() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/statistics", m.serveStatistics)

	server := &http.Server{Addr: m.addr, Handler: mux}
	go func() {
		<-m.done
		server.Close()
	}()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return fmt.Errorf("serve: %v", err)
}

// Handler returns the monitor's statistics endpoint handler, allowing
// the stream to be mounted on an existing server
func (m *Monitor) Handler() http.HandlerFunc {
	return m.serveStatistics
}

// Close stops the monitor and disconnects any client
func (m *Monitor) Close() {
	close(m.done)
}

// serveStatistics upgrades the connection and pushes statistics
// batches until the stats channel or the monitor closes. Pings keep
// the connection alive between batches.
func (m *Monitor) serveStatistics(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not upgrade connection: %v",
			err)
		return
	}
	defer ws.Close()

	pinger := channerics.NewTicker(m.done, pingPeriod)
	for {
		select {
		case <-m.done:
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-pinger:
			err := ws.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeWait))
			if err != nil {
				return
			}
		case stats, ok := <-m.stats:
			if !ok {
				return
			}

			ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := ws.WriteJSON(stats)
			if err != nil {
				return
			}
		}
	}
}
