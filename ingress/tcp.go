package ingress

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the TCP ingress stage configuration.
const (
	DefaultTCPConfigIPAddr = "0.0.0.0"
	DefaultTCPConfigPort   = 20_000
)

// TCPConfig contains the configuration for the TCP ingress stage.
type TCPConfig struct {
	// IPAddr is the IP address to listen on.
	IPAddr string

	// Port is the port to listen on.
	Port uint16

	// StagingSize is the size of the staging buffer used to batch reads
	// from the connection before copying them into the shared buffer.
	//
	// Default: 64 KiB
	StagingSize int
}

// DefaultTCPConfig returns the default configuration for the TCP ingress stage.
func DefaultTCPConfig() *TCPConfig {
	return &TCPConfig{
		IPAddr:      DefaultTCPConfigIPAddr,
		Port:        DefaultTCPConfigPort,
		StagingSize: DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *TCPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "IPAddr", &c.IPAddr, DefaultTCPConfigIPAddr)
	config.CheckNotZero(ac, "Port", &c.Port, DefaultTCPConfigPort)

	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

//////////////
//  SOURCE  //
//////////////

var _ source = (*tcpSource)(nil)

type tcpSource struct {
	tel *telemetry.Telemetry

	cfg *TCPConfig

	listener *net.TCPListener

	// Metrics
	openConnections atomic.Int64
	readBytes       atomic.Int64
}

func newTCPSource(cfg *TCPConfig) *tcpSource {
	return &tcpSource{
		cfg: cfg,
	}
}

func (ts *tcpSource) setTelemetry(tel *telemetry.Telemetry) {
	ts.tel = tel
}

func (ts *tcpSource) init() error {
	parsedAddr, err := netip.ParseAddr(ts.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := netip.AddrPortFrom(parsedAddr, ts.cfg.Port)
	listener, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(addr))
	if err != nil {
		return err
	}

	ts.listener = listener

	ts.initMetrics()

	return nil
}

func (ts *tcpSource) initMetrics() {
	ts.tel.NewUpDownCounter("open_connections", func() int64 { return ts.openConnections.Load() })
	ts.tel.NewCounter("read_bytes", func() int64 { return ts.readBytes.Load() })
}

// run accepts a single connection and streams its bytes into the buffer.
// The pipe carries exactly one stream, so the first connection wins and
// its EOF is the end of the stream.
func (ts *tcpSource) run(ctx context.Context, out *byteBuf) {
	defer out.CloseWrite()

	// Unblock Accept when the context is done
	go func() {
		<-ctx.Done()
		ts.listener.Close()
	}()

	conn, err := ts.listener.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
		default:
			ts.tel.LogError("failed to accept connection", err)
		}
		return
	}
	defer conn.Close()

	ts.tel.LogInfo("connection accepted", "remote_addr", conn.RemoteAddr().String())

	ts.openConnections.Add(1)
	defer ts.openConnections.Add(-1)

	staging := make([]byte, ts.cfg.StagingSize)

	pump(ctx, ts.tel, conn, out, staging, func(n int) {
		ts.readBytes.Add(int64(n))
	})
}

func (ts *tcpSource) close() {
	if ts.listener != nil {
		ts.listener.Close()
	}
}

/////////////
//  STAGE  //
/////////////

// TCPStage is an ingress stage that listens for a TCP connection and
// streams its bytes.
type TCPStage struct {
	*stage

	source *tcpSource
}

// NewTCPStage returns a new TCP ingress stage.
func NewTCPStage(out *byteBuf, cfg *TCPConfig) *TCPStage {
	source := newTCPSource(cfg)

	return &TCPStage{
		stage: newStage("tcp", source, out, cfg),

		source: source,
	}
}

// Init initializes the stage.
func (ts *TCPStage) Init(ctx context.Context) error {
	if err := ts.stage.Init(ctx); err != nil {
		return err
	}

	return ts.source.init()
}

// Close closes the stage.
func (ts *TCPStage) Close() {
	ts.source.close()
	ts.stage.Close()
}
