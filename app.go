package slotca

import (
	"context"

	"slotca/api/endpoints"
	"slotca/api/issue"
	"slotca/pkg/helper"
)

// Run serve the issue endpoint until ctx is cancelled
func Run(ctx context.Context, addr string, config issue.Config) error {
	endpoint, err := issue.New(config)
	if err != nil {
		return err
	}

	e := helper.NewEcho()
	endpoints.Route(e, endpoint)

	return helper.StartEcho(ctx, e, addr)
}
