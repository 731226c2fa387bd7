package testutils

import (
	"net/http"

	"slotca/api/endpoints"
	"slotca/pkg/helper"
)

func NewEndpointHandler(endpoint endpoints.Endpoint) http.Handler {
	handler := helper.NewEcho()
	endpoint.Route(handler.Group(""))

	return handler
}
