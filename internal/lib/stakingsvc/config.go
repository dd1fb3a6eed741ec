package stakingsvc

import (
	"fmt"
	"strings"
	"time"

	"github.com/TxnLab/lsd/internal/lib/misc"
)

// ServiceConfig is how to reach the external staking service.
type ServiceConfig struct {
	// ServiceID names the service. Pools are bound to it at initialization. Defaults to the URL
	ServiceID string            `yaml:"service_id,omitempty"`
	URL       string            `yaml:"url"`
	Token     string            `yaml:"-"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
	// attempts for idempotent reads
	MaxTries int `yaml:"max_tries,omitempty"`
}

func (c ServiceConfig) String() string {
	return fmt.Sprintf("ServiceID: %s, URL: %s, Token: (length:%d), Headers: %v, Timeout: %v", c.ID(), c.URL, len(c.Token), c.Headers, c.Timeout)
}

func (c ServiceConfig) ID() string {
	if c.ServiceID != "" {
		return c.ServiceID
	}
	return strings.TrimRight(c.URL, "/")
}

// ApplyEnv overrides the config from LSD_STAKING_* settings (environment or loaded secrets).
func (c *ServiceConfig) ApplyEnv() {
	if url := misc.GetSecret("LSD_STAKING_URL"); url != "" {
		c.URL = url
	}
	if token := misc.GetSecret("LSD_STAKING_TOKEN"); token != "" {
		c.Token = token
	}
	if id := misc.GetSecret("LSD_STAKING_ID"); id != "" {
		c.ServiceID = id
	}
	// key:value,[key:value...] pairs
	headers := misc.GetSecret("LSD_STAKING_HEADERS")
	for _, header := range strings.Split(headers, ",") {
		parts := strings.SplitN(header, ":", 2) // values may contain ':'
		if len(parts) == 2 {
			if c.Headers == nil {
				c.Headers = map[string]string{}
			}
			c.Headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
}
