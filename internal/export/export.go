package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/parse"
)

const (
	MachinesSheet = "Machines"
	AlarmsSheet   = "Alarms"
)

var (
	machineHeader = []string{"ID", "Name", "Active", "Operating hours", "Daily hours", "Operating days", "Weekly hours"}
	alarmHeader   = []string{"Machine ID", "Machine", "Alarm ID", "Title", "Interval (h)", "Elapsed (h)", "Remaining (h)", "Status", "Weeks until due", "Times triggered", "Last triggered at", "Related parts"}
)

// MaintenanceWorkbook renders the fleet overview as an xlsx workbook with
// one sheet of machines and one of alarms.
func MaintenanceWorkbook(machines []*maintenance.Machine) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(MachinesSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if _, err := f.NewSheet(AlarmsSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	if err := writeHeader(f, MachinesSheet, machineHeader, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeader(f, AlarmsSheet, alarmHeader, headerStyle); err != nil {
		return nil, err
	}
	f.SetColWidth(MachinesSheet, "B", "B", 28)
	f.SetColWidth(MachinesSheet, "F", "F", 24)
	f.SetColWidth(AlarmsSheet, "B", "B", 28)
	f.SetColWidth(AlarmsSheet, "D", "D", 32)
	f.SetColWidth(AlarmsSheet, "K", "L", 28)

	machineRow, alarmRow := 2, 2
	for _, m := range machines {
		schedule := m.Schedule()
		if err := writeRow(f, MachinesSheet, machineRow, []any{
			m.ID(),
			m.Name(),
			yesNo(m.IsActive()),
			m.OperatingHours(),
			schedule.DailyHours(),
			parse.FormatWeekdays(schedule.OperatingDays()),
			schedule.WeeklyHours(),
		}); err != nil {
			return nil, err
		}
		machineRow++

		hours := m.OperatingHours()
		for _, a := range m.Alarms() {
			eval := a.Evaluate(hours)
			lastAt := "-"
			if at, ok := a.LastTriggeredAt(); ok {
				lastAt = at.Format("2006-01-02 15:04")
			}
			if err := writeRow(f, AlarmsSheet, alarmRow, []any{
				m.ID(),
				m.Name(),
				a.ID(),
				a.Title(),
				a.IntervalHours(),
				eval.ElapsedHours,
				eval.RemainingHours,
				string(a.Status(hours)),
				schedule.WeeksToReachHours(hours+eval.RemainingHours, hours),
				a.TimesTriggered(),
				lastAt,
				strings.Join(a.RelatedParts(), ", "),
			}); err != nil {
				return nil, err
			}
			alarmRow++
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
