package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/gridfuse/internal/fusion"
	"github.com/banshee-data/gridfuse/internal/monitoring"
)

// UDPListener receives producer datagrams: raster samples go into the
// LayerStore, odometry samples into the PoseBuffer. One listener serves
// all channels; the datagram magic dispatches.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	store       *fusion.LayerStore
	poses       *fusion.PoseBuffer

	mu   sync.Mutex
	conn *net.UDPConn
}

// UDPListenerConfig contains configuration options for the listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int           // socket receive buffer, 0 for the OS default
	LogInterval time.Duration // cadence of receive stats logging
	Store       *fusion.LayerStore
	Poses       *fusion.PoseBuffer
}

// NewUDPListener creates a listener with the provided configuration.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: logInterval,
		store:       cfg.Store,
		poses:       cfg.Poses,
	}
}

// LocalAddr returns the bound address, or nil until Listen binds. Lets
// callers bind port 0 and discover the assigned port.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Listen binds the socket and processes datagrams until the context is
// cancelled. Malformed datagrams are counted and logged, never fatal.
func (l *UDPListener) Listen(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", l.address, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", l.address, err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("network: set receive buffer: %v", err)
		}
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	monitoring.Logf("network: listening for layer samples on %s", l.address)

	buf := make([]byte, 65535)
	var rasters, poses, malformed int
	lastLog := time.Now()

	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		pkt := buf[:n]
		switch {
		case IsOdometry(pkt):
			pose, err := DecodeOdometry(pkt)
			if err != nil {
				malformed++
				break
			}
			l.poses.Add(pose)
			poses++
		default:
			name, raster, err := DecodeRaster(pkt)
			if err != nil {
				malformed++
				break
			}
			l.store.Put(name, raster, raster.Stamp)
			rasters++
		}

		if time.Since(lastLog) >= l.logInterval {
			monitoring.Logf("network: received %d raster, %d odometry, %d malformed datagrams", rasters, poses, malformed)
			rasters, poses, malformed = 0, 0, 0
			lastLog = time.Now()
		}
	}
}
