// Package deviceapi talks to the platform's device endpoints on behalf of a
// single account.
package deviceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	adhttp "github.com/ohmynofan/naoris-device-bot/internal/adapters/http"
	"github.com/ohmynofan/naoris-device-bot/internal/config"
	"github.com/ohmynofan/naoris-device-bot/internal/domain/model"
)

const heartbeatTopic = "device-heartbeat"

type Client struct {
	api      *adhttp.APIClient
	account  model.Account
	platform config.Platform
}

func New(account model.Account, proxyURL string, platform config.Platform, timeout time.Duration, log *zap.Logger) (*Client, error) {
	api, err := adhttp.NewAPIClient(proxyURL, timeout, log)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, account: account, platform: platform}, nil
}

type togglePayload struct {
	WalletAddress string `json:"walletAddress"`
	State         string `json:"state"`
	DeviceHash    string `json:"deviceHash"`
}

type heartbeatInput struct {
	WalletAddress   string   `json:"walletAddress"`
	DeviceHash      string   `json:"deviceHash"`
	IsInstalled     bool     `json:"isInstalled"`
	ToggleState     bool     `json:"toggleState"`
	WhitelistedURLs []string `json:"whitelistedUrls"`
}

type heartbeatPayload struct {
	Topic     string         `json:"topic"`
	InputData heartbeatInput `json:"inputData"`
}

type walletPayload struct {
	WalletAddress string `json:"walletAddress"`
}

type walletFields struct {
	Points              *float64    `json:"points"`
	ActiveRatePerMinute *float64    `json:"activeRatePerMinute"`
	Rank                interface{} `json:"rank"`
}

type walletDetailsResponse struct {
	walletFields
	Details *walletFields `json:"details"`
	Data    *walletFields `json:"data"`
}

func (c *Client) post(ctx context.Context, op, endpoint string, body, out interface{}) error {
	err := c.api.Fetch(ctx, endpoint, &adhttp.FetchOptions{
		Method: "POST",
		Token:  c.account.Token,
		Body:   body,
	}, out)
	if err != nil {
		return &model.TransportError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) Toggle(ctx context.Context, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return c.post(ctx, "toggle "+state, c.platform.SecAPI+"/toggle", togglePayload{
		WalletAddress: c.account.WalletAddress,
		State:         state,
		DeviceHash:    c.account.DeviceHash,
	}, nil)
}

func (c *Client) Heartbeat(ctx context.Context, toggleState bool) error {
	return c.post(ctx, "heartbeat", c.platform.SecAPI+"/produce-to-kafka", heartbeatPayload{
		Topic: heartbeatTopic,
		InputData: heartbeatInput{
			WalletAddress:   c.account.WalletAddress,
			DeviceHash:      c.account.DeviceHash,
			IsInstalled:     true,
			ToggleState:     toggleState,
			WhitelistedURLs: c.platform.WhitelistedURLs,
		},
	}, nil)
}

func (c *Client) WalletDetails(ctx context.Context) (model.WalletDetails, error) {
	var resp walletDetailsResponse
	if err := c.post(ctx, "wallet details", c.platform.TestnetAPI+"/walletDetails", walletPayload{
		WalletAddress: c.account.WalletAddress,
	}, &resp); err != nil {
		return model.WalletDetails{}, err
	}

	fields := resp.walletFields
	for _, nested := range []*walletFields{resp.Details, resp.Data} {
		if fields.Points == nil && fields.ActiveRatePerMinute == nil && nested != nil {
			fields = *nested
		}
	}
	if fields.Points == nil && fields.ActiveRatePerMinute == nil {
		return model.WalletDetails{}, &model.TransportError{Op: "wallet details", Err: fmt.Errorf("response carries neither points nor activeRatePerMinute")}
	}

	return model.WalletDetails{
		Points:              fields.Points,
		ActiveRatePerMinute: fields.ActiveRatePerMinute,
		Rank:                formatRank(fields.Rank),
	}, nil
}

func formatRank(v interface{}) string {
	switch r := v.(type) {
	case nil:
		return "-"
	case float64:
		return strconv.FormatFloat(r, 'f', -1, 64)
	case string:
		if strings.TrimSpace(r) == "" {
			return "-"
		}
		return r
	case json.Number:
		return r.String()
	default:
		return fmt.Sprint(r)
	}
}
