package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	analytics "fleet-telemetry/internal/analytics/domain"
)

// BuildInsightPDF renders an insight as a one-page report.
func BuildInsightPDF(insight analytics.Insight) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fleet Health Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Factory: %s", insight.FactoryID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", insight.Period))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", insight.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(9)

	m := insight.Metrics
	rows := [][2]string{
		{"Average temperature", formatMetric(m.AvgTemperature, "%.2f")},
		{"Max temperature", formatMetric(m.MaxTemperature, "%.2f")},
		{"Average gas index", formatMetric(m.AvgGasIndex, "%.2f")},
		{"Vibration health score", formatMetric(m.VibrationHealthScore, "%.1f")},
		{"Device uptime (%)", formatMetric(m.DeviceUptimePercentage, "%.1f")},
		{"Anomalies detected", fmt.Sprintf("%d", m.AnomaliesDetected)},
		{"Energy consumption", formatMetric(m.EnergyConsumption, "%.3f")},
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Metric", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(80, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, row[1], "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatMetric(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
