package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
	"github.com/ohmynofan/naoris-device-bot/internal/proxypool"
	"github.com/ohmynofan/naoris-device-bot/pkg/utils"
)

var (
	multi    *pterm.MultiPrinter
	spinners = make(map[int]*pterm.SpinnerPrinter)
	mu       sync.Mutex
)

func StartUISystem() {
	m, _ := pterm.DefaultMultiPrinter.Start()
	multi = m
}

func StopUISystem() {
	mu.Lock()
	defer mu.Unlock()
	for _, spinner := range spinners {
		_ = spinner.Stop()
	}
	if multi != nil {
		_, _ = multi.Stop()
	}
}

// Board pushes session snapshots to the terminal.
type Board struct{}

func (Board) Update(status model.DeviceStatus) { UpdateStatus(status) }

func UpdateStatus(status model.DeviceStatus) {
	mu.Lock()
	defer mu.Unlock()

	if multi == nil {
		return
	}

	content := renderStatus(status)

	if spinner, ok := spinners[status.AccIdx]; ok {
		spinner.UpdateText(content)
		if status.State == model.StateStopped {
			spinner.Success(content)
		}
		return
	}
	spinner, _ := pterm.DefaultSpinner.
		WithWriter(multi.NewWriter()).
		WithRemoveWhenDone(false).
		Start(content)
	spinners[status.AccIdx] = spinner
}

func renderStatus(status model.DeviceStatus) string {
	earnings := "-"
	if status.HasEarnings {
		earnings = utils.FormatPoints(status.Earnings)
	}
	next := "-"
	if !status.NextCycle.IsZero() && status.State != model.StateStopped {
		next = FormatDelay(time.Until(status.NextCycle))
	}
	toggle := "OFF"
	if status.ToggleOn {
		toggle = "ON"
	}

	return fmt.Sprintf(`
=============== Account %d ================
Address  : %s
Proxy    : %s

Device   : %s (toggle %s)
Uptime   : %d cycles
Points   : %s
Rank     : %s

Status   : %s
Next     : %s
===========================================`,
		status.AccIdx+1,
		utils.ShortenAddress(status.Address),
		proxypool.Display(status.Proxy),
		stateLabel(status.State),
		toggle,
		status.UptimeCycles,
		earnings,
		defaultString(status.Rank, "-"),
		shortenForDisplay(defaultString(status.Message, "-")),
		next)
}

func stateLabel(s model.SessionState) string {
	switch s {
	case model.StateOnline:
		return pterm.Green(s.String())
	case model.StateDegraded:
		return pterm.Yellow(s.String())
	case model.StateStopped:
		return pterm.Gray(s.String())
	default:
		return pterm.Cyan(s.String())
	}
}

func FormatDelay(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d H %02d M %02d S", h, m, s)
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func shortenForDisplay(msg string) string {
	const maxLen = 140
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen-1]) + "…"
}
