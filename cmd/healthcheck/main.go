// Command healthcheck probes the predictor's /health endpoint and exits 0
// when it answers 200. It is meant for container health checks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

type health struct {
	Status   string `json:"status"`
	Variants map[string]struct {
		Loaded bool   `json:"loaded"`
		Error  string `json:"error"`
	} `json:"variants"`
}

func main() {
	var (
		url     = flag.String("url", "http://localhost:8501/health", "Health endpoint URL")
		timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
		strict  = flag.Bool("strict", false, "Fail when any variant is not loaded")
	)
	flag.Parse()

	if err := probe(*url, *timeout, *strict); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func probe(url string, timeout time.Duration, strict bool) error {
	resp, err := resty.New().SetTimeout(timeout).R().Get(url)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}

	var h health
	if err := json.Unmarshal(resp.Body(), &h); err != nil {
		return fmt.Errorf("invalid health response (%d): %w", resp.StatusCode(), err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("unhealthy: %s (%d)", h.Status, resp.StatusCode())
	}
	if strict && h.Status != "ok" {
		for name, v := range h.Variants {
			if !v.Loaded {
				return fmt.Errorf("variant %s not loaded: %s", name, v.Error)
			}
		}
		return fmt.Errorf("status %s", h.Status)
	}
	return nil
}
