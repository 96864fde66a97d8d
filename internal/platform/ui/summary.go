package ui

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/pkg/utils"
)

// SummaryRow pairs a final session snapshot with today's persisted totals.
type SummaryRow struct {
	Status      model.DeviceStatus
	TodayCycles int
	TodayFailed int
}

func PrintSummary(rows []SummaryRow) {
	data := pterm.TableData{{"#", "Wallet", "State", "Cycles", "Today", "Failed Today", "Points", "Rank"}}
	totalCycles := 0
	for _, row := range rows {
		s := row.Status
		points := "-"
		if s.HasEarnings {
			points = utils.FormatPoints(s.Earnings)
		}
		data = append(data, []string{
			fmt.Sprintf("%d", s.AccIdx+1),
			utils.ShortenAddress(s.Address),
			s.State.String(),
			fmt.Sprintf("%d", s.UptimeCycles),
			fmt.Sprintf("%d", row.TodayCycles),
			fmt.Sprintf("%d", row.TodayFailed),
			points,
			defaultString(s.Rank, "-"),
		})
		totalCycles += s.UptimeCycles
	}

	pterm.DefaultSection.Println("Uptime summary")
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Info.Printfln("%d sessions, %d cycles this run", len(rows), totalCycles)
}
