package engine

import (
	"context"
	"fmt"
)

// RodFetchFunc renders a page in the browser. It is injected from main.go so
// that engine/ never imports browser/.
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine renders pages in the headless browser. Its results carry layout
// annotations.
type RodEngine struct {
	fetchFunc    RodFetchFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine. When forceStealth is set every request
// is rendered with stealth evasions and the engine is named "rod-stealth".
func NewRodEngine(fetchFunc RodFetchFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{fetchFunc: fetchFunc, forceStealth: forceStealth, name: name}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return nil, fmt.Errorf("%s: fetchFunc not configured", e.name)
	}

	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	result.EngineName = e.name
	result.Rendered = true
	return result, nil
}
