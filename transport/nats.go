package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// statsDiscoverySubjectPrefix is the NATS Micro service-discovery control
// subject for service statistics (ADR-32, "io.nats.micro.v1.stats_response"):
// a request to "$SRV.STATS.<service>" fans out to every running instance of
// that service, and EACH instance replies with its own envelope on the
// shared reply inbox. Per-responder identity lives in that envelope's
// fields, not in the transport-level reply subject (which is the same
// ephemeral inbox string for every reply), mirroring how the original Rust
// source's nats_client.get_endpoints deserializes a Service{name, id,
// endpoints: [Endpoint{name, subject, data}]} from each reply's payload.
const statsDiscoverySubjectPrefix = "$SRV.STATS."

// microEndpointStats is one entry of a NATS Micro Stats response's
// "endpoints" array. Name/Subject are whatever the responding service
// instance registered for that endpoint; Data carries the instance's own
// custom payload (here, a JSON-encoded ForwardPassMetrics).
type microEndpointStats struct {
	Name    string          `json:"name"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// microStats is the envelope a single service instance replies with to a
// $SRV.STATS request.
type microStats struct {
	Name      string               `json:"name"`
	ID        string               `json:"id"`
	Endpoints []microEndpointStats `json:"endpoints"`
}

// NatsTransport implements PubSub and StatsScraper against a live NATS
// connection. Construction does not own the connection's lifecycle beyond
// Close: callers that share one *nats.Conn across multiple collaborators
// should close it themselves after every collaborator has stopped.
type NatsTransport struct {
	conn *nats.Conn
	log  *logrus.Entry
}

// Dial connects to a NATS server at url and wraps the connection.
func Dial(url string) (*NatsTransport, error) {
	conn, err := nats.Connect(url,
		nats.Name("kv-router"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NatsTransport{
		conn: conn,
		log:  logrus.WithField("component", "transport.nats"),
	}, nil
}

// Close drains and closes the underlying connection.
func (t *NatsTransport) Close() {
	if err := t.conn.Drain(); err != nil {
		t.log.Warnf("drain on close: %v", err)
	}
}

// Publish implements PubSub.
func (t *NatsTransport) Publish(_ context.Context, subject string, payload []byte) error {
	if err := t.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe implements PubSub. The returned channel is closed when ctx is
// cancelled; the NATS subscription is unsubscribed at that point.
func (t *NatsTransport) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	raw := make(chan *nats.Msg, 256)
	sub, err := t.conn.ChanSubscribe(subject, raw)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer func() {
			if uerr := sub.Unsubscribe(); uerr != nil {
				t.log.Warnf("unsubscribe from %s: %v", subject, uerr)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- msg.Data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Scrape implements StatsScraper by fanning a NATS Micro STATS discovery
// request out to every reachable instance of service and collecting
// replies until timeout elapses. Every instance answers on the same
// ephemeral reply inbox, so identity is taken from each reply's own
// decoded microStats envelope, never from the transport-level reply
// subject (which is identical across every responder). Workers that never
// reply within the window are simply absent from the result, matching "a
// scrape that finds zero endpoints is not an error."
func (t *NatsTransport) Scrape(ctx context.Context, service string, timeout time.Duration) ([]RawEndpoint, error) {
	subject := statsDiscoverySubjectPrefix + service
	sub, err := t.conn.SubscribeSync(t.conn.NewRespInbox())
	if err != nil {
		return nil, fmt.Errorf("prepare scrape reply inbox: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := t.conn.PublishRequest(subject, sub.Subject, nil); err != nil {
		return nil, fmt.Errorf("publish scrape request to %s: %w", subject, err)
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	var endpoints []RawEndpoint
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if err != nil {
			break // timeout or connection closed: stop collecting, not an error.
		}

		decoded, derr := decodeStatsReply(msg.Data)
		if derr != nil {
			t.log.WithError(derr).Warn("discarding malformed stats reply")
			continue
		}
		endpoints = append(endpoints, decoded...)
	}
	return endpoints, nil
}

// decodeStatsReply parses one $SRV.STATS reply into the RawEndpoints it
// carries. Split out from Scrape so the decoding logic is testable without
// a live NATS connection.
func decodeStatsReply(data []byte) ([]RawEndpoint, error) {
	var stats microStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decoding stats reply: %w", err)
	}

	endpoints := make([]RawEndpoint, 0, len(stats.Endpoints))
	for _, ep := range stats.Endpoints {
		endpoints = append(endpoints, RawEndpoint{
			Name:    ep.Name,
			Subject: ep.Subject,
			Data:    ep.Data,
		})
	}
	return endpoints, nil
}
