package query

import (
	"context"

	"github.com/goliatone/go-driveconnect/core"
)

type TokenBroker interface {
	AccessAndDestination(ctx context.Context, ref core.IdentityRef) (core.AccessGrant, error)
}

type DestinationReader interface {
	ResolveDefaultDestination(ctx context.Context, ref core.IdentityRef) (core.Destination, error)
	ListDestinations(ctx context.Context, ref core.IdentityRef) ([]core.Destination, error)
}

type AccessAndDestinationQuery struct {
	broker TokenBroker
}

func NewAccessAndDestinationQuery(broker TokenBroker) *AccessAndDestinationQuery {
	return &AccessAndDestinationQuery{broker: broker}
}

func (q *AccessAndDestinationQuery) Query(ctx context.Context, msg AccessAndDestinationMessage) (core.AccessGrant, error) {
	if q == nil || q.broker == nil {
		return core.AccessGrant{}, queryDependencyError("query: token broker is required")
	}
	return q.broker.AccessAndDestination(ctx, msg.Identity)
}

type ResolveDefaultDestinationQuery struct {
	reader DestinationReader
}

func NewResolveDefaultDestinationQuery(reader DestinationReader) *ResolveDefaultDestinationQuery {
	return &ResolveDefaultDestinationQuery{reader: reader}
}

func (q *ResolveDefaultDestinationQuery) Query(
	ctx context.Context,
	msg ResolveDefaultDestinationMessage,
) (core.Destination, error) {
	if q == nil || q.reader == nil {
		return core.Destination{}, queryDependencyError("query: destination reader is required")
	}
	return q.reader.ResolveDefaultDestination(ctx, msg.Identity)
}

type ListDestinationsQuery struct {
	reader DestinationReader
}

func NewListDestinationsQuery(reader DestinationReader) *ListDestinationsQuery {
	return &ListDestinationsQuery{reader: reader}
}

func (q *ListDestinationsQuery) Query(ctx context.Context, msg ListDestinationsMessage) ([]core.Destination, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: destination reader is required")
	}
	return q.reader.ListDestinations(ctx, msg.Identity)
}
