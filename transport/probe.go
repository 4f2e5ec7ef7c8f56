package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/c360/docstream/health"
)

// probeTimeout bounds a single health probe request.
const probeTimeout = 5 * time.Second

// NewHTTPProbe returns a health probe that issues a GET against the
// endpoint's ping path. The reconnection supervisor polls it to detect a
// dead upstream connection that the stream itself cannot observe.
func NewHTTPProbe(client *http.Client, pingURL, secret string) func(ctx context.Context) (health.Status, error) {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) (health.Status, error) {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL, nil)
		if err != nil {
			return health.Status{}, err
		}
		if secret != "" {
			req.Header.Set("Authorization", "Bearer "+secret)
		}

		resp, err := client.Do(req)
		if err != nil {
			return health.FromError("transport", err), nil
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return health.Unhealthy("transport", fmt.Sprintf("ping returned %d", resp.StatusCode)), nil
		}
		return health.Healthy("transport"), nil
	}
}
