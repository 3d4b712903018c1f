package account

import (
	"context"

	"github.com/pkg/errors"
)

var ErrUserNotFound = errors.New("user not found in directory")

type (
	// Identity is the authenticated caller, as asserted by the identity provider's token.
	Identity struct {
		UserID string `json:"user_id"`
		Role   Role   `json:"role"`
		Code   string `json:"code,omitempty"` // student or staff code
		Email  string `json:"email,omitempty"`
		Name   string `json:"name,omitempty"`
	}

	UserInfo struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Code     string `json:"code"`
	}

	// Directory resolves accounts owned by the external accounts service.
	// Unknown users are reported with ErrUserNotFound; transport failures with *core.UpstreamUnavailableError.
	Directory interface {
		GetUserByCode(ctx context.Context, code string) (UserInfo, error)
		GetUserByEmail(ctx context.Context, email string) (UserInfo, error)
		GetUserByID(ctx context.Context, id string) (UserInfo, error)
	}
)

// DisplayName falls back to the code, then the id.
func (id Identity) DisplayName() string {
	switch {
	case id.Name != "":
		return id.Name
	case id.Code != "":
		return id.Code
	}
	return id.UserID
}
