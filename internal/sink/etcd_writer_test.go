package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	clientv3 "go.etcd.io/etcd/client/v3"

	"heartbeat-sim/internal/heartbeat"
)

type fakeEtcd struct {
	kv         map[string]string
	leased     map[string]bool
	granted    int
	keepAlives int
	revoked    []clientv3.LeaseID
	keepErr    error
}

func newFakeEtcd() *fakeEtcd {
	return &fakeEtcd{kv: map[string]string{}, leased: map[string]bool{}}
}

func (f *fakeEtcd) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.kv[key] = val
	f.leased[key] = len(opts) > 0
	return &clientv3.PutResponse{}, nil
}

func (f *fakeEtcd) Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	f.granted++
	return &clientv3.LeaseGrantResponse{ID: clientv3.LeaseID(f.granted), TTL: ttl}, nil
}

func (f *fakeEtcd) KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error) {
	f.keepAlives++
	if f.keepErr != nil {
		return nil, f.keepErr
	}
	return &clientv3.LeaseKeepAliveResponse{ID: id}, nil
}

func (f *fakeEtcd) Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.revoked = append(f.revoked, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func TestEtcdWriterStatusAndEscalation(t *testing.T) {
	f := newFakeEtcd()
	w := newEtcdWriter(f, "/hb/", 10)

	if err := w.WriteProbe(heartbeat.ProbeRow{SessionID: "s1", Cycle: 1, Outcome: heartbeat.OutcomeSuccess}); err != nil {
		t.Fatalf("WriteProbe: %v", err)
	}
	if err := w.WriteProbe(heartbeat.ProbeRow{SessionID: "s1", Cycle: 2, Outcome: heartbeat.OutcomeTimeout}); err != nil {
		t.Fatalf("WriteProbe: %v", err)
	}
	if f.granted != 1 || f.keepAlives != 1 {
		t.Fatalf("granted %d, keepalives %d", f.granted, f.keepAlives)
	}

	var status heartbeat.ProbeRow
	if err := json.Unmarshal([]byte(f.kv["/hb/status/s1"]), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Cycle != 2 {
		t.Fatalf("status key holds cycle %d, want latest", status.Cycle)
	}
	if !f.leased["/hb/status/s1"] {
		t.Fatalf("status key written without lease")
	}

	if err := w.WriteEscalation(heartbeat.EscalationRow{SessionID: "s1", Cycle: 3}); err != nil {
		t.Fatalf("WriteEscalation: %v", err)
	}
	if _, ok := f.kv["/hb/escalations/s1"]; !ok {
		t.Fatalf("escalation key missing: %v", f.kv)
	}
	if f.leased["/hb/escalations/s1"] {
		t.Fatalf("escalation key must outlive the monitor")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(f.revoked) != 1 || f.revoked[0] != 1 {
		t.Fatalf("lease not revoked: %v", f.revoked)
	}
}

func TestEtcdWriterRegrantsExpiredLease(t *testing.T) {
	f := newFakeEtcd()
	w := newEtcdWriter(f, "", 0)
	if w.StatusKey("x") != "/heartbeat/status/x" {
		t.Fatalf("default prefix not applied: %s", w.StatusKey("x"))
	}
	if err := w.WriteConnection(heartbeat.ConnectionRow{Action: "reply"}); err != nil {
		t.Fatalf("WriteConnection: %v", err)
	}
	f.keepErr = errors.New("lease expired")
	if err := w.WriteConnection(heartbeat.ConnectionRow{Action: "stall"}); err != nil {
		t.Fatalf("WriteConnection: %v", err)
	}
	if f.granted != 2 {
		t.Fatalf("expected a new lease after keepalive failure, granted %d", f.granted)
	}
	if _, ok := f.kv["/heartbeat/target/last"]; !ok {
		t.Fatalf("connection key missing: %v", f.kv)
	}
}
