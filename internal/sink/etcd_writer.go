package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"heartbeat-sim/internal/heartbeat"
)

// etcdClient is the subset of *clientv3.Client used by EtcdWriter.
type etcdClient interface {
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
}

// DefaultEtcdPrefix roots every key the writer puts.
const DefaultEtcdPrefix = "/heartbeat"

// EtcdWriter publishes the latest probe status under a leased key so that it
// disappears when the monitor stops refreshing it. Escalations are stored
// without a lease for supervisors to act on.
type EtcdWriter struct {
	mu      sync.Mutex
	client  etcdClient
	closer  func() error
	prefix  string
	ttl     int64
	timeout time.Duration
	lease   clientv3.LeaseID
}

// NewEtcdClient dials the given endpoints.
func NewEtcdClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// NewEtcdWriter connects to endpoints. ttl is the status key lease in seconds.
func NewEtcdWriter(endpoints []string, prefix string, ttl int64) (*EtcdWriter, error) {
	cli, err := NewEtcdClient(endpoints)
	if err != nil {
		return nil, fmt.Errorf("etcd client: %w", err)
	}
	w := newEtcdWriter(cli, prefix, ttl)
	w.closer = cli.Close
	return w, nil
}

func newEtcdWriter(c etcdClient, prefix string, ttl int64) *EtcdWriter {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if ttl <= 0 {
		ttl = 30
	}
	return &EtcdWriter{
		client:  c,
		prefix:  strings.TrimRight(prefix, "/"),
		ttl:     ttl,
		timeout: 5 * time.Second,
	}
}

// StatusKey is where the latest probe row for session lives.
func (w *EtcdWriter) StatusKey(session string) string {
	return w.prefix + "/status/" + session
}

// EscalationKey is where the escalation for session lives.
func (w *EtcdWriter) EscalationKey(session string) string {
	return w.prefix + "/escalations/" + session
}

// ConnectionKey is where the latest target connection row lives.
func (w *EtcdWriter) ConnectionKey() string {
	return w.prefix + "/target/last"
}

// ensureLease grants the status lease on first use and refreshes it afterwards.
func (w *EtcdWriter) ensureLease(ctx context.Context) error {
	if w.lease != 0 {
		if _, err := w.client.KeepAliveOnce(ctx, w.lease); err == nil {
			return nil
		}
		w.lease = 0
	}
	resp, err := w.client.Grant(ctx, w.ttl)
	if err != nil {
		return fmt.Errorf("etcd grant: %w", err)
	}
	w.lease = resp.ID
	return nil
}

func (w *EtcdWriter) put(key string, v any, leased bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	var opts []clientv3.OpOption
	if leased {
		if err := w.ensureLease(ctx); err != nil {
			return err
		}
		opts = append(opts, clientv3.WithLease(w.lease))
	}
	if _, err := w.client.Put(ctx, key, string(data), opts...); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

// WriteProbe stores row as the session's current status.
func (w *EtcdWriter) WriteProbe(row heartbeat.ProbeRow) error {
	return w.put(w.StatusKey(row.SessionID), row, true)
}

// WriteEscalation stores the escalation for the session.
func (w *EtcdWriter) WriteEscalation(row heartbeat.EscalationRow) error {
	return w.put(w.EscalationKey(row.SessionID), row, false)
}

// WriteConnection stores the last connection handled by the target.
func (w *EtcdWriter) WriteConnection(row heartbeat.ConnectionRow) error {
	return w.put(w.ConnectionKey(), row, true)
}

// Close revokes the status lease and closes the client.
func (w *EtcdWriter) Close() error {
	w.mu.Lock()
	lease := w.lease
	w.lease = 0
	w.mu.Unlock()
	if lease != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		_, _ = w.client.Revoke(ctx, lease)
		cancel()
	}
	if w.closer != nil {
		return w.closer()
	}
	return nil
}
