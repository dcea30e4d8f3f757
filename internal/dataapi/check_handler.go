package dataapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/requirement"
)

// maxBindings bounds a single Evaluate call.
const maxBindings = 100

// Check evaluates one requirement.
//
// Request fields: rule (string), requirement_id (number), discount_id
// (number, optional), customer (object or null), store (object).
// Response fields: is_valid (bool), reason (string).
//
// It returns:
//   - INVALID_ARGUMENT for a malformed request or an unknown rule.
//   - FAILED_PRECONDITION when the stored configuration is unusable.
//   - INTERNAL when the configuration could not be read.
func (a *API) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	fields := in.AsMap()

	rule, err := stringField(fields, "rule", true)
	if err != nil {
		log.Warn("bad request", slog.String("error", err.Error()))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req, err := parseValidationRequest(fields)
	if err != nil {
		log.Warn("bad request", slog.String("error", err.Error()))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.RequirementID, err = intField(fields, "requirement_id", true); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := a.rules.Check(ctx, rule, req)
	if err != nil {
		return nil, statusFromError(err)
	}

	return newStruct(map[string]any{
		"is_valid": res.IsValid,
		"reason":   res.Reason,
	})
}

// Evaluate checks a discount's requirements against one customer and store.
//
// Request fields: requirements (list of {rule, requirement_id}), discount_id,
// customer, store. Response fields: is_valid (bool), results (list of
// {rule, requirement_id, is_valid, reason, error}).
// Per-requirement failures are reported in results, never as an RPC error.
func (a *API) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.AsMap()

	bindings, err := parseBindings(fields)
	if err != nil {
		logger.FromContext(ctx).Warn("bad request", slog.String("error", err.Error()))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req, err := parseValidationRequest(fields)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	batch, err := a.rules.EvaluateAll(ctx, bindings, req)
	if err != nil {
		return nil, statusFromError(err)
	}

	results := make([]any, 0, len(batch.Results))
	for _, br := range batch.Results {
		item := map[string]any{
			"rule":           br.SystemName,
			"requirement_id": float64(br.RequirementID),
			"is_valid":       br.IsValid,
			"reason":         br.Reason,
		}
		if br.Err != nil {
			item["error"] = status.Code(statusFromError(br.Err)).String()
		}
		results = append(results, item)
	}

	return newStruct(map[string]any{
		"is_valid": batch.IsValid,
		"results":  results,
	})
}

// statusFromError maps registry errors to gRPC statuses without leaking internals.
func statusFromError(err error) error {
	switch {
	case errors.Is(err, requirement.ErrUnknownRule), errors.Is(err, requirement.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, requirement.ErrInvalidConfiguration):
		return status.Error(codes.FailedPrecondition, "requirement is misconfigured")
	default:
		return status.Error(codes.Internal, "failed to evaluate requirement")
	}
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// --- Request decoding ---

func parseValidationRequest(fields map[string]any) (*requirement.ValidationRequest, error) {
	discountID, err := intField(fields, "discount_id", false)
	if err != nil {
		return nil, err
	}

	req := &requirement.ValidationRequest{DiscountID: discountID}

	if raw, ok := fields["store"]; ok && raw != nil {
		store, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("store must be an object")
		}
		if req.Store.ID, err = intField(store, "id", false); err != nil {
			return nil, fmt.Errorf("store.%w", err)
		}
		if req.Store.Name, err = stringField(store, "name", false); err != nil {
			return nil, fmt.Errorf("store.%w", err)
		}
	}

	if raw, ok := fields["customer"]; ok && raw != nil {
		c, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("customer must be an object or null")
		}
		customer, err := parseCustomer(c)
		if err != nil {
			return nil, fmt.Errorf("customer.%w", err)
		}
		req.Customer = customer
	}

	return req, nil
}

func parseCustomer(fields map[string]any) (*requirement.Customer, error) {
	id, err := intField(fields, "id", true)
	if err != nil {
		return nil, err
	}
	customer := &requirement.Customer{ID: id}

	if raw, ok := fields["role_ids"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("role_ids must be a list")
		}
		for i, v := range list {
			n, err := toInt(v)
			if err != nil {
				return nil, fmt.Errorf("role_ids[%d] %v", i, err)
			}
			customer.RoleIDs = append(customer.RoleIDs, n)
		}
	}

	if raw, ok := fields["attributes"]; ok && raw != nil {
		attrs, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("attributes must be an object")
		}
		customer.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("attributes.%s must be a string", k)
			}
			customer.Attributes[k] = s
		}
	}

	return customer, nil
}

func parseBindings(fields map[string]any) ([]requirement.Binding, error) {
	raw, ok := fields["requirements"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("requirements must be a list")
	}
	if len(list) > maxBindings {
		return nil, fmt.Errorf("requirements cannot hold more than %d entries", maxBindings)
	}

	bindings := make([]requirement.Binding, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("requirements[%d] must be an object", i)
		}
		rule, err := stringField(m, "rule", true)
		if err != nil {
			return nil, fmt.Errorf("requirements[%d].%w", i, err)
		}
		id, err := intField(m, "requirement_id", true)
		if err != nil {
			return nil, fmt.Errorf("requirements[%d].%w", i, err)
		}
		bindings = append(bindings, requirement.Binding{SystemName: rule, RequirementID: id})
	}
	return bindings, nil
}

func stringField(fields map[string]any, key string, required bool) (string, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%s is required", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if required && s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// intField reads a Struct number as a non-negative whole int.
func intField(fields map[string]any, key string, required bool) (int, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return 0, nil
	}
	n, err := toInt(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %v", key, err)
	}
	return n, nil
}

func toInt(v any) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, errors.New("must be a number")
	}
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, errors.New("must be a non-negative integer")
	}
	return int(f), nil
}
