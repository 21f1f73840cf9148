package goSession

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrSessionNotFound is returned when no session record exists for the ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInvalid is returned for a session that carries an error sentinel.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired is returned when a refresh was needed but no refresh token was held.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshRejected is returned when the backend rejected the refresh token.
	ErrRefreshRejected = errors.New("refresh rejected")
	// ErrRefreshUnavailable is returned when a refresh failed transiently and the
	// current access token is no longer valid.
	ErrRefreshUnavailable = errors.New("refresh unavailable")
	// ErrLoginRejected is returned when the backend refused the credentials.
	ErrLoginRejected = errors.New("login rejected")
	// ErrRegistrationRejected is returned when the backend refused a new account,
	// for example because the username or email is taken.
	ErrRegistrationRejected = errors.New("registration rejected")
	// ErrBackendUnavailable is returned when the backend could not be reached or failed transiently.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrStoreUnavailable is returned when the session store failed.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

func mapLoginFailure(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureNone:
		return nil
	case flows.LoginFailureInput, flows.LoginFailureRejected:
		return fmt.Errorf("%w: %w", ErrLoginRejected, res.Err)
	case flows.LoginFailureUnavailable:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, res.Err)
	default:
		return mapStoreError(res.Err)
	}
}

func mapRegisterFailure(res flows.RegisterResult) error {
	switch res.Failure {
	case flows.RegisterFailureNone:
		return nil
	case flows.RegisterFailureInput, flows.RegisterFailureRejected:
		return fmt.Errorf("%w: %w", ErrRegistrationRejected, res.Err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, res.Err)
	}
}

func mapAccessFailure(res flows.AccessResult) error {
	switch res.Failure {
	case flows.AccessFailureNone:
		return nil
	case flows.AccessFailureNotFound:
		return ErrSessionNotFound
	case flows.AccessFailureInvalid:
		return ErrSessionInvalid
	case flows.AccessFailureExpired:
		return ErrSessionExpired
	case flows.AccessFailureRejected:
		return fmt.Errorf("%w: %w", ErrRefreshRejected, res.Err)
	case flows.AccessFailureUnavailable:
		if res.Err == nil {
			return ErrRefreshUnavailable
		}
		return fmt.Errorf("%w: %w", ErrRefreshUnavailable, res.Err)
	default:
		return mapStoreError(res.Err)
	}
}
