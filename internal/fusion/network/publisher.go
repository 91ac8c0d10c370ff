package network

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/gridfuse/internal/fusion"
	"github.com/banshee-data/gridfuse/internal/monitoring"
)

// UDPPublisher forwards fused cost rasters to the planner address. Sends
// are asynchronous: Publish enqueues and returns immediately, and a full
// queue drops the datagram rather than stalling the fusion cycle.
// Queue-full drops and socket send failures are counted separately and
// logged at the configured interval.
type UDPPublisher struct {
	conn        *net.UDPConn
	channel     chan []byte
	logInterval time.Duration
	address     string
	dropped     atomic.Int64
}

// NewUDPPublisher dials the planner address.
func NewUDPPublisher(address string, logInterval time.Duration) (*UDPPublisher, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", address, err)
	}
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPPublisher{
		conn:        conn,
		channel:     make(chan []byte, 64),
		logInterval: logInterval,
		address:     address,
	}, nil
}

// Start begins the send goroutine. It drains the queue until the context
// is cancelled.
func (p *UDPPublisher) Start(ctx context.Context) {
	go func() {
		sendErrs := 0
		var lastError error
		ticker := time.NewTicker(p.logInterval)
		defer ticker.Stop()
		defer p.conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case pkt := <-p.channel:
				if _, err := p.conn.Write(pkt); err != nil {
					sendErrs++
					lastError = err
				}
			case <-ticker.C:
				if dropped := p.dropped.Swap(0); dropped > 0 {
					monitoring.Logf("network: dropped %d rasters on full send queue", dropped)
				}
				if sendErrs > 0 {
					monitoring.Logf("network: %d raster sends failed (latest: %v)", sendErrs, lastError)
					sendErrs = 0
					lastError = nil
				}
			}
		}
	}()
}

// Publish encodes and enqueues one fused raster. A full queue drops the
// raster; the next cycle supersedes it anyway.
func (p *UDPPublisher) Publish(name string, r *fusion.Raster) error {
	pkt, err := EncodeRaster(name, r)
	if err != nil {
		return err
	}
	select {
	case p.channel <- pkt:
		return nil
	default:
		p.dropped.Add(1)
		return fmt.Errorf("publish %q: send queue full", name)
	}
}
