package gateway

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
)

// NewClient selects the strategy named in cfg. A sandbox without
// credentials degrades to the noop client so local setups work offline.
func NewClient(cfg config.Gateway, httpClient *http.Client) (Client, error) {
	hasCredentials := cfg.APILogin != "" && cfg.TransactionKey != ""

	switch cfg.Strategy {
	case config.GatewayNoop, "":
		return NewNoopClient(), nil
	case config.GatewaySandbox:
		if !hasCredentials {
			log.Warn("[Gateway] Sandbox selected without Authorize.Net credentials, using noop gateway")
			return NewNoopClient(), nil
		}
		return NewAuthorizeNetClient(httpClient, SandboxEndpoint, cfg.APILogin, cfg.TransactionKey, true), nil
	case config.GatewayProduction:
		if !hasCredentials {
			return nil, fmt.Errorf("production gateway requires Authorize.Net credentials")
		}
		return NewAuthorizeNetClient(httpClient, ProductionEndpoint, cfg.APILogin, cfg.TransactionKey, false), nil
	default:
		return nil, fmt.Errorf("unknown gateway strategy %q", cfg.Strategy)
	}
}

// New builds the resilient adapter around the configured strategy.
func New(cfg config.Gateway) (*Adapter, error) {
	client, err := NewClient(cfg, &http.Client{})
	if err != nil {
		return nil, err
	}
	policy := Policy{
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
	}
	log.Infof("[Gateway] Using %s gateway (timeout=%s attempts=%d breaker=%d/%s)",
		client.Name(), policy.Timeout, policy.MaxAttempts, cfg.BreakerThreshold, cfg.BreakerCooldown)
	return NewAdapter(client, policy, NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)), nil
}
