// Package connection resolves how the consumer reaches its event source and
// checkpoint store. Identity based settings win; a shared secret is the
// fallback; neither is a configuration error.
package connection

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"repairhub/internal/config"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

var (
	// ErrNoEventSource means neither a namespace nor a connection string was configured.
	ErrNoEventSource = errors.New("either event_source.namespace or event_source.connection_string must be configured")
	// ErrMissingName means the log (topic) name is empty.
	ErrMissingName = errors.New("event_source.name must be configured")
	// ErrInvalidConnectionString means the shared secret has no usable endpoint.
	ErrInvalidConnectionString = errors.New("invalid event source connection string")
)

// DefaultPort is used for hosts given without a port.
const DefaultPort = "9093"

type Kind int

const (
	Identity Kind = iota + 1
	Secret
)

func (k Kind) String() string {
	switch k {
	case Identity:
		return "identity"
	case Secret:
		return "secret"
	default:
		return "unknown"
	}
}

// EventSource is the resolved, credential-agnostic description of the log.
type EventSource struct {
	Kind          Kind
	Brokers       []string
	Topic         string
	ConsumerGroup string
	TLS           *tls.Config
	SASL          sasl.Mechanism
}

// ResolveEventSource runs once at startup.
func ResolveEventSource(cfg config.EventSource) (*EventSource, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, ErrMissingName
	}

	namespace := strings.TrimSpace(cfg.Namespace)
	secret := strings.TrimSpace(cfg.ConnectionString)

	switch {
	case namespace != "":
		tlsCfg, err := clientTLS(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("event source identity: %w", err)
		}
		return &EventSource{
			Kind:          Identity,
			Brokers:       namespaceHosts(namespace, cfg.NamespaceSuffix),
			Topic:         name,
			ConsumerGroup: cfg.ConsumerGroup,
			TLS:           tlsCfg,
		}, nil

	case secret != "":
		host, err := endpointHost(secret)
		if err != nil {
			return nil, err
		}
		return &EventSource{
			Kind:          Secret,
			Brokers:       []string{withPort(host)},
			Topic:         name,
			ConsumerGroup: cfg.ConsumerGroup,
			TLS:           &tls.Config{MinVersion: tls.VersionTLS12},
			SASL: plain.Mechanism{
				Username: "$ConnectionString",
				Password: secret,
			},
		}, nil

	default:
		return nil, ErrNoEventSource
	}
}

// Dialer builds the kafka-go dialer for readers and the consumer group.
func (e *EventSource) Dialer() *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     false, // Force IPv4
		TLS:           e.TLS,
		SASLMechanism: e.SASL,
	}
}

// Transport builds the kafka-go transport for writers.
func (e *EventSource) Transport() *kafka.Transport {
	return &kafka.Transport{
		DialTimeout: 10 * time.Second,
		TLS:         e.TLS,
		SASL:        e.SASL,
	}
}

// endpointHost extracts the host of "Endpoint=sb://host/;SharedAccessKeyName=..;SharedAccessKey=..".
func endpointHost(connStr string) (string, error) {
	for _, part := range strings.Split(connStr, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(key, "Endpoint") {
			continue
		}
		value = strings.TrimSpace(value)
		if i := strings.Index(value, "://"); i >= 0 {
			value = value[i+3:]
		}
		value = strings.TrimRight(value, "/")
		if value == "" {
			break
		}
		return value, nil
	}
	return "", fmt.Errorf("%w: missing Endpoint", ErrInvalidConnectionString)
}

// namespaceHosts turns the namespace setting into brokers. It is either a
// comma separated host list or a bare namespace label such as "contonance",
// which becomes "contonance" + suffix.
func namespaceHosts(list, suffix string) []string {
	var hosts []string
	for _, h := range strings.Split(list, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if suffix != "" && !strings.ContainsAny(h, ".:") && h != "localhost" {
			h += "." + strings.TrimPrefix(suffix, ".")
		}
		hosts = append(hosts, withPort(h))
	}
	return hosts
}

func withPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, DefaultPort)
}

// clientTLS returns nil when no certificate is configured: the workload then
// relies on its network identity.
func clientTLS(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("client certificate and key must be configured together")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
