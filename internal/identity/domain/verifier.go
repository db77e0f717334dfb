package domain

import "context"

//go:generate mockgen -source=verifier.go -destination=../mocks/mock_verifier.go -package=mocks

// Verifier validates a raw credential with the external identity provider.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Claims, error)
}
