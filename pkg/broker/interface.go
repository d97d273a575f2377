package broker

import "context"

// Provider exposes the account-monitoring and protective-action surface of a
// broker in a venue-agnostic fashion. Implementations must return an error on
// any hard failure rather than serving stale or synthesised data; the caller
// treats a failed fetch as "no information", never as "flat PNL".
type Provider interface {
	// Account monitoring.
	FetchAccountSnapshot(ctx context.Context) (*AccountSnapshot, error)
	FetchPositionSnapshots(ctx context.Context) ([]PositionSnapshot, error)

	// Protective actions.
	ClosePosition(ctx context.Context, id string) error
	CancelPendingOrders(ctx context.Context) error
	InvokeKillSwitch(ctx context.Context) error
}
