package masterdata

import "context"

// FactoryRepository answers tenant existence checks.
type FactoryRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
}
