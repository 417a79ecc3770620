package shared

import (
	"fmt"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
)

// ErrOwnerRequired occurs when a request carries no owner identity.
var ErrOwnerRequired = fmt.Errorf("owner id required: %w", httpx.ErrUnauthorized)
