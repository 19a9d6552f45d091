package client

import (
	"context"
	"strconv"

	"github.com/kbukum/apikit/component"
	"github.com/kbukum/apikit/observability"
	"github.com/kbukum/apikit/version"
)

const componentName = "api_client"

// Name implements component.Component.
func (c *Client) Name() string { return componentName }

// Start implements component.Component. New already starts the queue drain
// loop and the breaker probe, so Start only verifies the client is usable
// and marks it online.
func (c *Client) Start(ctx context.Context) error {
	if c.destroyed.Load() {
		return ErrDestroyed
	}
	c.SetOnline(true)
	return nil
}

// Stop implements component.Component.
func (c *Client) Stop(ctx context.Context) error {
	c.Destroy()
	return nil
}

// Health implements component.Component. The client is unhealthy once
// destroyed, degraded while the circuit breaker is open or connectivity
// is lost, and healthy otherwise.
func (c *Client) Health(ctx context.Context) component.Health {
	h := component.Health{Name: componentName, Status: component.StatusHealthy}
	switch {
	case c.destroyed.Load():
		h.Status = component.StatusUnhealthy
		h.Message = "client destroyed"
	case !c.breaker.IsHealthy():
		h.Status = component.StatusDegraded
		h.Message = "circuit breaker " + c.breaker.State().String()
	case !c.Online():
		h.Status = component.StatusDegraded
		h.Message = "offline"
	}
	return h
}

// ServiceHealth breaks the aggregate Health down by subsystem.
func (c *Client) ServiceHealth(ctx context.Context) *observability.ServiceHealth {
	sh := observability.NewServiceHealth(componentName, version.GetShortVersion())

	breaker := component.Health{Name: "circuit_breaker", Status: component.StatusHealthy}
	if !c.breaker.IsHealthy() {
		breaker.Status = component.StatusDegraded
		breaker.Message = "circuit breaker " + c.breaker.State().String()
	}
	bh := observability.FromComponent(breaker)
	bh.Details = map[string]string{"state": c.breaker.State().String()}
	sh.AddComponent(bh)

	stats := c.queue.Stats()
	q := component.Health{Name: "offline_queue", Status: component.StatusHealthy}
	if !stats.Online {
		q.Status = component.StatusDegraded
		q.Message = "offline"
	}
	qh := observability.FromComponent(q)
	qh.Details = map[string]string{
		"depth":  strconv.Itoa(stats.Total),
		"failed": strconv.Itoa(stats.Failed),
	}
	sh.AddComponent(qh)

	if c.destroyed.Load() {
		sh.Status = observability.HealthStatusDown
	}
	return sh
}
