package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/config"
)

// gatewayBase resolves the gateway address from the config file, falling back
// to defaults when none is present.
func gatewayBase(cmd *cli.Command) string {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		cfg = config.Default()
	}
	return fmt.Sprintf("http://%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
}

var gatewayClient = &http.Client{Timeout: 5 * time.Second}

func getJSON(url string, out any) error {
	resp, err := gatewayClient.Get(url)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gatewayError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(url string, out any) error {
	resp, err := gatewayClient.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gatewayError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func gatewayError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("gateway: %s", payload.Error)
	}
	return fmt.Errorf("gateway: unexpected status %d", resp.StatusCode)
}
