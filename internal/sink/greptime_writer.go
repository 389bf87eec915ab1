package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"heartbeat-sim/internal/heartbeat"
)

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// DefaultGreptimePort is the ingester gRPC port used when the endpoint has none.
const DefaultGreptimePort = 4001

// GreptimeDBWriter writes heartbeat rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	mu              sync.Mutex
	client          greptimeClient
	timeout         time.Duration
	probeTable      string
	escalationTable string
	connectionTable string
}

// NewGreptimeDBWriter connects to endpoint (host or host:port) and database.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{
		client:          client,
		timeout:         5 * time.Second,
		probeTable:      heartbeat.ProbeTableName,
		escalationTable: heartbeat.EscalationTableName,
		connectionTable: heartbeat.ConnectionTableName,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptimedb endpoint %q: bad port: %w", endpoint, err)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table) error {
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		slog.Error("greptimedb write failed", "table", name, "err", err)
		return err
	}
	return nil
}

// WriteProbe inserts a single probe row.
func (w *GreptimeDBWriter) WriteProbe(row heartbeat.ProbeRow) error {
	return w.WriteProbes([]heartbeat.ProbeRow{row})
}

// WriteProbes inserts multiple probe rows in one request.
func (w *GreptimeDBWriter) WriteProbes(rows []heartbeat.ProbeRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.probeTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("session_id", types.STRING)
	tbl.AddTagColumn("target", types.STRING)
	tbl.AddFieldColumn("cycle", types.INT64)
	tbl.AddFieldColumn("outcome", types.STRING)
	tbl.AddFieldColumn("payload", types.STRING)
	tbl.AddFieldColumn("error", types.STRING)
	tbl.AddFieldColumn("consecutive_failures", types.INT64)
	tbl.AddFieldColumn("max_failures", types.INT64)
	tbl.AddFieldColumn("latency_ms", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(
			r.SessionID, r.Target, int64(r.Cycle), r.Outcome, r.Payload, r.Error,
			int64(r.ConsecutiveFailures), int64(r.MaxFailures), r.LatencyMS, r.Timestamp,
		); err != nil {
			return err
		}
	}
	return w.write(w.probeTable, tbl)
}

// WriteEscalation inserts an escalation row.
func (w *GreptimeDBWriter) WriteEscalation(r heartbeat.EscalationRow) error {
	tbl, err := table.New(w.escalationTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("session_id", types.STRING)
	tbl.AddTagColumn("target", types.STRING)
	tbl.AddFieldColumn("cycle", types.INT64)
	tbl.AddFieldColumn("consecutive_failures", types.INT64)
	tbl.AddFieldColumn("max_failures", types.INT64)
	tbl.AddFieldColumn("last_outcome", types.STRING)
	tbl.AddFieldColumn("reason", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	if err := tbl.AddRow(
		r.SessionID, r.Target, int64(r.Cycle), int64(r.ConsecutiveFailures),
		int64(r.MaxFailures), r.LastOutcome, r.Reason, r.Timestamp,
	); err != nil {
		return err
	}
	return w.write(w.escalationTable, tbl)
}

// WriteConnection inserts a target connection row.
func (w *GreptimeDBWriter) WriteConnection(r heartbeat.ConnectionRow) error {
	tbl, err := table.New(w.connectionTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("action", types.STRING)
	tbl.AddFieldColumn("connection_id", types.STRING)
	tbl.AddFieldColumn("remote", types.STRING)
	tbl.AddFieldColumn("probe", types.STRING)
	tbl.AddFieldColumn("payload", types.STRING)
	tbl.AddFieldColumn("failure_chance", types.FLOAT64)
	tbl.AddFieldColumn("chaos", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	if err := tbl.AddRow(
		r.Action, r.ConnectionID, r.Remote, r.Probe, r.Payload,
		r.FailureChance, r.Chaos, r.Timestamp,
	); err != nil {
		return err
	}
	return w.write(w.connectionTable, tbl)
}
