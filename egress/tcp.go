package egress

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the TCP egress stage configuration.
const (
	DefaultTCPConfigIPAddr       = "127.0.0.1"
	DefaultTCPConfigPort         = 20_000
	DefaultTCPConfigWriteTimeout = 10 * time.Second
)

// TCPConfig contains the configuration for the TCP egress stage.
type TCPConfig struct {
	// IPAddr is the destination IP address.
	IPAddr string

	// Port is the destination port.
	Port uint16

	// WriteTimeout is the timeout for writing a chunk to the connection.
	//
	// Default: 10s
	WriteTimeout time.Duration

	// StagingSize is the size of the staging buffer the shared buffer
	// is drained into before writing to the connection.
	//
	// Default: 64 KiB
	StagingSize int
}

// DefaultTCPConfig returns the default configuration for the TCP egress stage.
func DefaultTCPConfig() *TCPConfig {
	return &TCPConfig{
		IPAddr:       DefaultTCPConfigIPAddr,
		Port:         DefaultTCPConfigPort,
		WriteTimeout: DefaultTCPConfigWriteTimeout,
		StagingSize:  DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *TCPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultTCPConfigIPAddr)
	config.CheckNotZero(ac, "Port", &c.Port, DefaultTCPConfigPort)

	config.CheckNotNegative(ac, "WriteTimeout", &c.WriteTimeout, DefaultTCPConfigWriteTimeout)
	config.CheckNotZero(ac, "WriteTimeout", &c.WriteTimeout, DefaultTCPConfigWriteTimeout)

	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

////////////
//  SINK  //
////////////

var _ sink = (*tcpSink)(nil)

type tcpSink struct {
	tel *telemetry.Telemetry

	cfg *TCPConfig

	conn *net.TCPConn

	// Metrics
	deliveredBytes atomic.Int64
}

func newTCPSink(cfg *TCPConfig) *tcpSink {
	return &tcpSink{
		cfg: cfg,
	}
}

func (ts *tcpSink) setTelemetry(tel *telemetry.Telemetry) {
	ts.tel = tel
}

func (ts *tcpSink) init() error {
	parsedAddr, err := netip.ParseAddr(ts.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := net.TCPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, ts.cfg.Port))
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return err
	}

	ts.conn = conn

	ts.initMetrics()

	return nil
}

func (ts *tcpSink) initMetrics() {
	ts.tel.NewCounter("delivered_bytes", func() int64 { return ts.deliveredBytes.Load() })
}

// Write sends a chunk over the connection under a write deadline.
func (ts *tcpSink) Write(p []byte) (int, error) {
	if err := ts.conn.SetWriteDeadline(time.Now().Add(ts.cfg.WriteTimeout)); err != nil {
		return 0, err
	}

	return ts.conn.Write(p)
}

func (ts *tcpSink) run(_ context.Context, in *byteBuf) {
	staging := make([]byte, ts.cfg.StagingSize)

	drain(ts.tel, in, ts, staging, func(n int) {
		ts.deliveredBytes.Add(int64(n))
	})
}

func (ts *tcpSink) close() {
	if ts.conn == nil {
		return
	}

	if err := ts.conn.CloseWrite(); err != nil {
		ts.tel.LogError("failed to close connection write side", err)
	}

	if err := ts.conn.Close(); err != nil {
		ts.tel.LogError("failed to close connection", err)
	}
}

/////////////
//  STAGE  //
/////////////

// TCPStage is an egress stage that streams bytes over a TCP connection.
type TCPStage struct {
	*stage

	sink *tcpSink
}

// NewTCPStage returns a new TCP egress stage.
func NewTCPStage(in *byteBuf, cfg *TCPConfig) *TCPStage {
	sink := newTCPSink(cfg)

	return &TCPStage{
		stage: newStage("tcp", sink, in, cfg),

		sink: sink,
	}
}

// Init initializes the stage.
func (ts *TCPStage) Init(ctx context.Context) error {
	if err := ts.stage.Init(ctx); err != nil {
		return err
	}

	return ts.sink.init()
}
