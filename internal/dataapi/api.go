// Package dataapi implements the gRPC data plane: the hot path callers use to
// check discount requirements at checkout.
package dataapi

import (
	"google.golang.org/grpc"

	"github.com/rafaeljc/discountrules/internal/requirement"
	"github.com/rafaeljc/discountrules/internal/validation"
)

var _ RequirementServer = (*API)(nil)

// API implements RequirementService on top of a rule registry.
type API struct {
	rules *requirement.Registry
}

// NewAPI creates the data plane API. Panics if rules is nil.
func NewAPI(rules *requirement.Registry) *API {
	validation.AssertNotNil(rules, "requirement registry")
	return &API{rules: rules}
}

// Register attaches the service to grpcServer.
func (a *API) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, a)
}
