// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"

	"github.com/ManuGH/connectbridge/internal/resilience"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
)

// BridgeChecker is unhealthy once the bridge has stopped.
type BridgeChecker struct {
	done <-chan struct{}
}

// NewBridgeChecker watches done, the bridge's completion channel.
func NewBridgeChecker(done <-chan struct{}) *BridgeChecker {
	return &BridgeChecker{done: done}
}

func (c *BridgeChecker) Name() string { return "bridge" }

func (c *BridgeChecker) Check(context.Context) CheckResult {
	select {
	case <-c.done:
		return CheckResult{Status: StatusUnhealthy, Message: "bridge stopped"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "running"}
	}
}

// BreakerChecker reports an upstream as degraded while its breaker is not
// closed. Playback control keeps working without the upstream.
type BreakerChecker struct {
	name    string
	breaker *resilience.Breaker
}

// NewBreakerChecker reports on b under name.
func NewBreakerChecker(name string, b *resilience.Breaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: b}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch s := c.breaker.State(); s {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(s)}
	default:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(s)}
	}
}

// TokenStoreChecker probes the token cache with a lookup. A failing cache
// only degrades the service; tokens are then fetched from the session.
type TokenStoreChecker struct {
	store tokenstore.Store
}

// NewTokenStoreChecker probes s.
func NewTokenStoreChecker(s tokenstore.Store) *TokenStoreChecker {
	return &TokenStoreChecker{store: s}
}

func (c *TokenStoreChecker) Name() string { return "token_store" }

func (c *TokenStoreChecker) Check(ctx context.Context) CheckResult {
	if _, _, err := c.store.Get(ctx, []string{"health-probe"}); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
