package auth

import "context"

// Checker checks whether the client with the given token is logged in or not.
type Checker interface {
	IsLogged(ctx context.Context, token string) (bool, error)
}
