package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Dispatcher tries its engines in order and returns the first success.
// A domain served by a later engine is remembered, and that engine goes
// first for the domain until the memory expires. It implements Engine.
type Dispatcher struct {
	engines []Engine
	memory  *DomainMemory
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. memory may be nil.
func NewDispatcher(engines []Engine, memory *DomainMemory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{engines: engines, memory: memory, logger: logger}
}

func (d *Dispatcher) Name() string { return "auto" }

// Fetch runs the engines for req and returns the first result. If all
// engines fail, it returns the last error.
func (d *Dispatcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	domain := extractDomain(req.URL)

	remembered := ""
	if d.memory != nil {
		remembered = d.memory.Get(domain)
	}
	order := d.order(remembered)

	var lastErr error
	for _, eng := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := eng.Fetch(ctx, req)
		if err != nil {
			d.logger.Debug("engine failed", "engine", eng.Name(), "url", req.URL, "error", err)
			if eng.Name() == remembered {
				d.memory.Delete(domain)
			}
			lastErr = err
			continue
		}

		d.logger.Info("engine served page", "engine", eng.Name(), "url", req.URL)
		if d.memory != nil {
			d.memory.Set(domain, eng.Name())
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("dispatcher: no engine for %s", req.URL)
	}
	return nil, lastErr
}

// order returns the engines with the remembered one first.
func (d *Dispatcher) order(remembered string) []Engine {
	if remembered == "" {
		return d.engines
	}
	order := make([]Engine, 0, len(d.engines))
	for _, eng := range d.engines {
		if eng.Name() == remembered {
			order = append(order, eng)
		}
	}
	for _, eng := range d.engines {
		if eng.Name() != remembered {
			order = append(order, eng)
		}
	}
	return order
}

// extractDomain parses the hostname from a URL string.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
