// Package prompts builds the analysis prompts submitted through the
// mailbox. Wording is shared with the device clients so responses stay
// comparable across submitters.
package prompts

import (
	"fmt"
	"sort"
	"strings"

	"pulserelay/pkg/telemetry"
)

// BuildAnomalyAnalysis renders the full network health analysis prompt.
// The anomaly section is included only when an anomaly is attached.
func BuildAnomalyAnalysis(m telemetry.NetworkMetrics, sensors []telemetry.SensorData, anomaly *telemetry.Anomaly) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this network health data:\n\n")
	fmt.Fprintf(&b, "Network Metrics:\n")
	fmt.Fprintf(&b, "- Latency: %gms\n", m.PingAvg)
	fmt.Fprintf(&b, "- Packet Loss: %g%%\n", m.PacketLoss)
	fmt.Fprintf(&b, "- Signal Strength: %d dBm\n", m.WifiStrength)
	fmt.Fprintf(&b, "- Jitter: %gms\n", m.PingJitter)
	fmt.Fprintf(&b, "- CPU Load: %g%%\n", m.CPULoad)
	fmt.Fprintf(&b, "- CPU Temp: %g C\n", m.CPUTemp)
	fmt.Fprintf(&b, "- Health Score: %.0f/100\n\n", m.HealthScore())
	fmt.Fprintf(&b, "Environmental Sensors:\n%s\n", SummarizeSensors(sensors))

	if anomaly != nil {
		fmt.Fprintf(&b, "\nDetected Anomaly:\n")
		fmt.Fprintf(&b, "- Type: %s\n", anomaly.Kind)
		fmt.Fprintf(&b, "- Severity: %s\n", anomaly.Severity)
		fmt.Fprintf(&b, "- Description: %s\n", anomaly.Description)
	}

	b.WriteString("\nProvide:\n")
	b.WriteString("1. Overall health assessment\n")
	b.WriteString("2. Issues identified\n")
	b.WriteString("3. Correlation between environmental factors and network performance\n")
	b.WriteString("4. Recommendations")
	return b.String()
}

// BuildHealingActions renders the remediation prompt for one anomaly.
func BuildHealingActions(a telemetry.Anomaly, context string) string {
	var b strings.Builder
	b.WriteString("As a network healing AI agent, analyze this issue and suggest specific actions:\n\n")
	fmt.Fprintf(&b, "Issue: %s\n", a.Description)
	fmt.Fprintf(&b, "Type: %s\n", a.Kind)
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "Context: %s\n\n", context)
	b.WriteString("Provide:\n")
	b.WriteString("1. Root cause analysis\n")
	b.WriteString("2. Step-by-step healing actions\n")
	b.WriteString("3. Expected outcome\n")
	b.WriteString("4. Preventive measures\n\n")
	b.WriteString("Be concise and actionable.")
	return b.String()
}

// BuildCorrelationAnalysis renders the cross-signal correlation prompt
// over a window of metric samples and sensor readings.
func BuildCorrelationAnalysis(metrics []telemetry.NetworkMetrics, sensors []telemetry.SensorData) string {
	var latency, loss float64
	if len(metrics) > 0 {
		for _, m := range metrics {
			latency += m.PingAvg
			loss += m.PacketLoss
		}
		latency /= float64(len(metrics))
		loss /= float64(len(metrics))
	}

	var b strings.Builder
	b.WriteString("Analyze correlations between network performance and environmental sensors:\n\n")
	b.WriteString("Network Data Summary:\n")
	fmt.Fprintf(&b, "- Avg Latency: %.2fms\n", latency)
	fmt.Fprintf(&b, "- Avg Packet Loss: %.2f%%\n\n", loss)
	fmt.Fprintf(&b, "Sensor Data Summary:\n%s\n\n", SummarizeSensors(sensors))
	b.WriteString("Find patterns and correlations that might indicate network issues.")
	return b.String()
}

// SummarizeSensors averages readings per sensor kind, one line each in
// kind order so output is stable.
func SummarizeSensors(data []telemetry.SensorData) string {
	type agg struct {
		sum  float64
		n    int
		unit string
	}
	byKind := map[telemetry.SensorKind]*agg{}
	for _, d := range data {
		a, ok := byKind[d.Kind]
		if !ok {
			a = &agg{unit: d.Unit}
			byKind[d.Kind] = a
		}
		a.sum += d.Value
		a.n++
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	lines := make([]string, 0, len(kinds))
	for _, k := range kinds {
		a := byKind[telemetry.SensorKind(k)]
		lines = append(lines, fmt.Sprintf("- %s: %.2f %s", k, a.sum/float64(a.n), a.unit))
	}
	return strings.Join(lines, "\n")
}
