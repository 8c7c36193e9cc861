package main

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pipebuffer/pipebuffer"
	"github.com/pipebuffer/pipebuffer/egress"
	"github.com/pipebuffer/pipebuffer/ingress"
)

// newIngressStage builds the producer stage for the --in endpoint.
func newIngressStage(cliCtx *cli.Context, buf *pipebuffer.Buffer) (pipebuffer.Stage, error) {
	endpoint := cliCtx.String("in")

	switch {
	case endpoint == "-":
		return ingress.NewStdinStage(buf, ingress.DefaultReaderConfig()), nil

	case strings.HasPrefix(endpoint, "tcp://"):
		ipAddr, port, err := parseTCPEndpoint(endpoint)
		if err != nil {
			return nil, err
		}

		cfg := ingress.DefaultTCPConfig()
		cfg.IPAddr = ipAddr
		cfg.Port = port

		return ingress.NewTCPStage(buf, cfg), nil

	default:
		cfg := ingress.DefaultFileConfig(endpoint)
		cfg.Follow = cliCtx.Bool("follow")

		return ingress.NewFileStage(buf, cfg), nil
	}
}

// newEgressStage builds the consumer stage for the --out endpoint.
func newEgressStage(cliCtx *cli.Context, buf *pipebuffer.Buffer) (pipebuffer.Stage, error) {
	endpoint := cliCtx.String("out")

	switch {
	case endpoint == "-":
		return egress.NewStdoutStage(buf, egress.DefaultWriterConfig()), nil

	case strings.HasPrefix(endpoint, "tcp://"):
		ipAddr, port, err := parseTCPEndpoint(endpoint)
		if err != nil {
			return nil, err
		}

		cfg := egress.DefaultTCPConfig()
		cfg.IPAddr = ipAddr
		cfg.Port = port

		return egress.NewTCPStage(buf, cfg), nil

	case strings.HasPrefix(endpoint, "kafka://"):
		brokers, topic, err := parseKafkaEndpoint(endpoint)
		if err != nil {
			return nil, err
		}

		cfg := egress.DefaultKafkaConfig()
		cfg.Brokers = brokers
		cfg.Topic = topic

		return egress.NewKafkaStage(buf, cfg), nil

	default:
		return egress.NewFileStage(buf, egress.DefaultFileConfig(endpoint)), nil
	}
}

func parseTCPEndpoint(endpoint string) (string, uint16, error) {
	hostPort := strings.TrimPrefix(endpoint, "tcp://")

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", 0, fmt.Errorf("invalid tcp endpoint %q: %w", endpoint, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid tcp endpoint %q: %w", endpoint, err)
	}

	return host, uint16(port), nil
}

func parseKafkaEndpoint(endpoint string) ([]string, string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, "", fmt.Errorf("invalid kafka endpoint %q: %w", endpoint, err)
	}

	topic := strings.TrimPrefix(parsed.Path, "/")
	if parsed.Host == "" || topic == "" {
		return nil, "", fmt.Errorf("invalid kafka endpoint %q: expected kafka://host:port/topic", endpoint)
	}

	return strings.Split(parsed.Host, ","), topic, nil
}
