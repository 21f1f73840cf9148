package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/goSession/backend"
	"github.com/MrEthical07/goSession/refresh"
)

// RegisterFailureKind classifies registration failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInput
	RegisterFailureRejected
	RegisterFailureUnavailable
)

// RegisterResult is the flow-local registration response shape.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	Email   string
}

// RegisterDeps captures registration flow dependencies.
type RegisterDeps struct {
	Register func(ctx context.Context, reg backend.Registration) error
}

// RunRegister forwards a new account request to the backend. No session is
// created; the caller logs in afterwards.
func RunRegister(ctx context.Context, reg backend.Registration, deps RegisterDeps) RegisterResult {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Email == "" || reg.Password == "" {
		return RegisterResult{Failure: RegisterFailureInput, Err: ErrEmptyCredentials, Email: reg.Email}
	}

	if err := deps.Register(ctx, reg); err != nil {
		kind, _ := refresh.ClassifyError(err)
		if kind == refresh.FailureTerminal {
			return RegisterResult{Failure: RegisterFailureRejected, Err: err, Email: reg.Email}
		}
		return RegisterResult{Failure: RegisterFailureUnavailable, Err: err, Email: reg.Email}
	}
	return RegisterResult{Email: reg.Email}
}
