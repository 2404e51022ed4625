package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	telemetry "fleet-telemetry/internal/telemetry/domain"
)

var seriesHeader = []string{
	"Timestamp", "Temperature", "Gas Index", "Vibration X", "Vibration Y", "Vibration Z", "Humidity", "Pressure", "Power",
}

// BuildSeriesXLSX renders device readings as a single-sheet workbook.
func BuildSeriesXLSX(deviceID string, readings []telemetry.Reading) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Readings"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Device")
	_ = f.SetCellValue(sheet, "B1", deviceID)
	for i, title := range seriesHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 3)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, title)
	}
	for i, r := range readings {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), r.TS.UTC().Format(time.RFC3339))
		values := []*float64{r.Temperature, r.GasIndex, r.VibrationX, r.VibrationY, r.VibrationZ, r.Humidity, r.Pressure, r.PowerConsumption}
		for col, v := range values {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+2, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, *v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
