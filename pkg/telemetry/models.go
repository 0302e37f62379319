package telemetry

import "time"

// Collection names shared with the ingesting devices.
const (
	ColNetworkMetrics = "network_anomalies"
	ColSensorData     = "sensor_data"
	ColAnomalies      = "anomalies"
	ColAgentActions   = "agent_actions"
	ColAgentState     = "agent_state"
)

// SensorKind identifies what a sensor reading measures.
type SensorKind string

const (
	SensorTemperature SensorKind = "temperature"
	SensorHumidity    SensorKind = "humidity"
	SensorMotion      SensorKind = "motion"
	SensorVibration   SensorKind = "vibration"
	SensorPowerDraw   SensorKind = "power_draw"
)

// NetworkMetrics is one sampled network health row from a device.
type NetworkMetrics struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	IsAnomaly int       `json:"is_anomaly"`

	PingAvg      float64 `json:"ping_avg"`
	PingJitter   float64 `json:"ping_jitter"`
	PacketLoss   float64 `json:"packet_loss"`
	WifiStrength int     `json:"wifi_strength"`

	CPULoad     float64 `json:"cpu_load"`
	CPUTemp     float64 `json:"cpu_temp"`
	AmbientTemp float64 `json:"ambient_temp"`
	Humidity    float64 `json:"humidity"`

	MotionLevel int `json:"motion_level"`
	BytesRecv   int `json:"bytes_recv"`
	BytesSent   int `json:"bytes_sent"`
}

// HealthScore folds the sampled metrics into a 0..100 score. Penalties
// mirror the device-side scoring so both ends agree on what "healthy"
// means.
func (m NetworkMetrics) HealthScore() float64 {
	score := 100.0
	if m.PingAvg > 50 {
		score -= min(20, (m.PingAvg-50)/10)
	}
	score -= m.PacketLoss * 5
	if m.PingJitter > 10 {
		score -= min(15, (m.PingJitter-10)/2)
	}
	if m.WifiStrength < 30 {
		score -= min(15, float64(30-m.WifiStrength)/2)
	}
	if m.CPULoad > 80 {
		score -= min(10, (m.CPULoad-80)/5)
	}
	if m.CPUTemp > 70 {
		score -= min(10, (m.CPUTemp-70)/3)
	}
	return max(0, score)
}

// NetworkHealthy reports whether the network-facing metrics are within
// operating thresholds.
func (m NetworkMetrics) NetworkHealthy() bool {
	return m.PingAvg < 100 && m.PacketLoss < 1 && m.WifiStrength > 20
}

// SystemHealthy reports whether the host itself is within thresholds.
func (m NetworkMetrics) SystemHealthy() bool {
	return m.CPULoad < 90 && m.CPUTemp < 80
}

// SensorData is one environmental sensor reading.
type SensorData struct {
	ID        string     `json:"id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      SensorKind `json:"sensor_type"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
	DeviceID  string     `json:"device_id"`
	ArduinoID string     `json:"arduino_id"`
}

// Normal reports whether the reading is inside the expected band for
// its sensor kind.
func (s SensorData) Normal() bool {
	switch s.Kind {
	case SensorTemperature:
		return s.Value >= 15 && s.Value <= 35
	case SensorHumidity:
		return s.Value >= 30 && s.Value <= 70
	case SensorMotion, SensorVibration:
		return s.Value < 100
	case SensorPowerDraw:
		return s.Value < 5.0
	}
	return true
}

// AnomalySeverity ranks detected anomalies.
type AnomalySeverity string

const (
	SeverityCritical AnomalySeverity = "critical"
	SeverityWarning  AnomalySeverity = "warning"
	SeverityInfo     AnomalySeverity = "info"
)

// AnomalyKind classifies a detected anomaly.
type AnomalyKind string

const (
	AnomalyLatencySpike AnomalyKind = "latency_spike"
	AnomalyPacketLoss   AnomalyKind = "packet_loss"
	AnomalyTemperature  AnomalyKind = "temperature_anomaly"
	AnomalyConnDrop     AnomalyKind = "connection_drop"
	AnomalyHardware     AnomalyKind = "hardware_issue"
	AnomalyCorrelated   AnomalyKind = "correlated_issue"
)

// Anomaly is a detected problem on a device, open until resolved.
type Anomaly struct {
	ID                string          `json:"id,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	Kind              AnomalyKind     `json:"type"`
	Severity          AnomalySeverity `json:"severity"`
	Description       string          `json:"description"`
	RootCause         string          `json:"root_cause,omitempty"`
	RecommendedAction string          `json:"recommended_action,omitempty"`
	IsResolved        bool            `json:"is_resolved"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	AffectedMetrics   []string        `json:"affected_metrics,omitempty"`
	DeviceID          string          `json:"device_id"`
}

// AgentActionKind classifies actions the remediation agent can take.
type AgentActionKind string

const (
	ActionDiagnosticRun  AgentActionKind = "diagnostic_run"
	ActionNetworkRestart AgentActionKind = "network_restart"
	ActionCacheFlush     AgentActionKind = "cache_flush"
	ActionConfigOptimize AgentActionKind = "config_optimization"
	ActionAlert          AgentActionKind = "alert_generation"
)

// AgentStatus is the remediation agent's current activity.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentAnalyzing AgentStatus = "analyzing"
	AgentActing    AgentStatus = "acting"
	AgentWaiting   AgentStatus = "waiting"
)

// AgentState is the agent's live status report. It is a singleton
// document kept at a well-known id so watchers see every change.
type AgentState struct {
	Status              AgentStatus `json:"status"`
	CurrentTask         string      `json:"current_task,omitempty"`
	LastActionTimestamp *time.Time  `json:"last_action_timestamp,omitempty"`
	ModelVersion        string      `json:"model_version"`
	AccuracyScore       *float64    `json:"accuracy_score,omitempty"`
}

// AgentAction records one action taken by the remediation agent.
type AgentAction struct {
	ID            string             `json:"id,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	Kind          AgentActionKind    `json:"action_type"`
	Description   string             `json:"description"`
	Success       bool               `json:"success"`
	AnomalyID     string             `json:"anomaly_id,omitempty"`
	BeforeMetrics map[string]float64 `json:"before_metrics,omitempty"`
	AfterMetrics  map[string]float64 `json:"after_metrics,omitempty"`
	AIResponse    string             `json:"ai_response,omitempty"`
}
