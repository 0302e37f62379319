package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pulserelay/pkg/logger"
	"pulserelay/pkg/store"
)

// Default fetch limits, shared with the device clients.
const (
	DefaultFetchLimit  = 100
	DefaultActionLimit = 50
)

// Service reads and writes device telemetry through the document store.
// Rows that fail to decode are dropped with a warning rather than failing
// the whole fetch, since device firmware revisions disagree on optional
// fields.
type Service struct {
	ads store.Adapter
}

// NewService returns a Service backed by the given adapter.
func NewService(ads store.Adapter) *Service {
	return &Service{ads: ads}
}

// NetworkMetrics returns the most recent network samples, newest first.
func (s *Service) NetworkMetrics(ctx context.Context, limit int) ([]NetworkMetrics, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	docs, err := s.ads.Query(ctx, ColNetworkMetrics, store.Query{
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query network metrics: %w", err)
	}
	return decodeAll[NetworkMetrics](ColNetworkMetrics, docs), nil
}

// SensorData returns recent readings for a device, newest first. A
// non-empty kind narrows the result to one sensor type.
func (s *Service) SensorData(ctx context.Context, deviceID string, kind SensorKind, limit int) ([]SensorData, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	q := store.Query{
		Filters:    []store.Filter{{Field: "device_id", Op: store.OpEq, Value: deviceID}},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	}
	if kind != "" {
		q.Filters = append(q.Filters, store.Filter{Field: "sensor_type", Op: store.OpEq, Value: string(kind)})
	}
	docs, err := s.ads.Query(ctx, ColSensorData, q)
	if err != nil {
		return nil, fmt.Errorf("query sensor data: %w", err)
	}
	return decodeAll[SensorData](ColSensorData, docs), nil
}

// Anomalies returns anomalies for a device, newest first. Resolved
// anomalies are excluded unless includeResolved is set.
func (s *Service) Anomalies(ctx context.Context, deviceID string, includeResolved bool) ([]Anomaly, error) {
	q := store.Query{
		Filters:    []store.Filter{{Field: "device_id", Op: store.OpEq, Value: deviceID}},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      DefaultFetchLimit,
	}
	if !includeResolved {
		q.Filters = append(q.Filters, store.Filter{Field: "is_resolved", Op: store.OpEq, Value: false})
	}
	docs, err := s.ads.Query(ctx, ColAnomalies, q)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	return decodeAll[Anomaly](ColAnomalies, docs), nil
}

// ResolveAnomaly marks an anomaly resolved or reopens it. Reopening
// clears the resolved_at field.
func (s *Service) ResolveAnomaly(ctx context.Context, id string, resolved bool) error {
	fields := map[string]any{"is_resolved": resolved}
	if resolved {
		fields["resolved_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	} else {
		fields["resolved_at"] = nil
	}
	if err := s.ads.Update(ctx, ColAnomalies, id, fields); err != nil {
		return fmt.Errorf("update anomaly %s: %w", id, err)
	}
	return nil
}

// AgentActions returns the most recent remediation actions, newest first.
func (s *Service) AgentActions(ctx context.Context, limit int) ([]AgentAction, error) {
	if limit <= 0 {
		limit = DefaultActionLimit
	}
	docs, err := s.ads.Query(ctx, ColAgentActions, store.Query{
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query agent actions: %w", err)
	}
	return decodeAll[AgentAction](ColAgentActions, docs), nil
}

// SaveAgentAction records a remediation action and returns its id. A zero
// timestamp is stamped with the current time.
func (s *Service) SaveAgentAction(ctx context.Context, a AgentAction) (string, error) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	a.ID = ""
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode agent action: %w", err)
	}
	id, err := s.ads.Append(ctx, ColAgentActions, raw)
	if err != nil {
		return "", fmt.Errorf("append agent action: %w", err)
	}
	return id, nil
}

// AgentStateDocID is the fixed id the agent's live status lives at.
const AgentStateDocID = "current"

// AgentState returns the agent's current status report, or nil when the
// agent has never published one.
func (s *Service) AgentState(ctx context.Context) (*AgentState, error) {
	doc, err := s.ads.Get(ctx, ColAgentState, AgentStateDocID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent state: %w", err)
	}
	st, ok := decodeOne[AgentState](ColAgentState, doc)
	if !ok {
		return nil, fmt.Errorf("decode agent state %s", doc.ID)
	}
	return &st, nil
}

// SaveAgentState publishes the agent's status report, replacing the
// previous one. A missing timestamp is stamped with the current time.
func (s *Service) SaveAgentState(ctx context.Context, st AgentState) error {
	if st.LastActionTimestamp == nil {
		now := time.Now().UTC()
		st.LastActionTimestamp = &now
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode agent state: %w", err)
	}
	if err := s.ads.Put(ctx, ColAgentState, AgentStateDocID, raw); err != nil {
		return fmt.Errorf("put agent state: %w", err)
	}
	return nil
}

// WatchAgentState streams agent status reports as they are published.
// The current state, if any, is delivered first. The returned cancel
// func releases the subscription.
func (s *Service) WatchAgentState() (<-chan AgentState, func(), error) {
	sub, err := s.ads.Subscribe(ColAgentState, store.Query{})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe agent state: %w", err)
	}
	out := make(chan AgentState)
	go func() {
		defer close(out)
		for doc := range sub.Events() {
			st, ok := decodeOne[AgentState](ColAgentState, doc)
			if !ok {
				continue
			}
			out <- st
		}
	}()
	return out, sub.Close, nil
}

// WatchAnomalies streams unresolved anomalies for a device as they are
// written. The returned cancel func releases the subscription.
func (s *Service) WatchAnomalies(deviceID string) (<-chan Anomaly, func(), error) {
	sub, err := s.ads.Subscribe(ColAnomalies, store.Query{
		Filters: []store.Filter{
			{Field: "device_id", Op: store.OpEq, Value: deviceID},
			{Field: "is_resolved", Op: store.OpEq, Value: false},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe anomalies: %w", err)
	}
	out := make(chan Anomaly)
	go func() {
		defer close(out)
		for doc := range sub.Events() {
			a, ok := decodeOne[Anomaly](ColAnomalies, doc)
			if !ok {
				continue
			}
			out <- a
		}
	}()
	return out, sub.Close, nil
}

func decodeAll[T any](collection string, docs []store.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, ok := decodeOne[T](collection, doc)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

func decodeOne[T any](collection string, doc store.Document) (T, bool) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		logger.Warn("telemetry_decode_drop", "collection", collection, "id", doc.ID, "error", err)
		var zero T
		return zero, false
	}
	setID(&v, doc.ID)
	return v, true
}

// setID copies the store-assigned document id into the model.
func setID(v any, id string) {
	switch m := v.(type) {
	case *NetworkMetrics:
		m.ID = id
	case *SensorData:
		m.ID = id
	case *Anomaly:
		m.ID = id
	case *AgentAction:
		m.ID = id
	}
}
