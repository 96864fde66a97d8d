package ui

import "github.com/pterm/pterm"

func Banner(platform string) {
	pterm.DefaultHeader.WithFullWidth().Println(platform + " Device Heartbeat Bot")
}

// ConfirmProxy asks whether to route sessions through proxy.txt. The
// configured value is the default answer.
func ConfirmProxy(defaultValue bool) (bool, error) {
	return pterm.DefaultInteractiveConfirm.
		WithDefaultText("Run sessions through proxies from proxy.txt?").
		WithDefaultValue(defaultValue).
		Show()
}
