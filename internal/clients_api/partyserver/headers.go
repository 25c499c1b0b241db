package partyserver

import (
	"net/http"
	"strings"
)

const (
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderWalletAddress = "X-Wallet-Address"

	contentTypeJSON = "application/json"
)

// composeHeaders builds the header set for one call, later steps win:
// fixed Content-Type, then static headers, then admin credentials when
// the route is admin-scoped and a credential is configured
func composeHeaders(static map[string]string, admin *AdminAuth, adminRoute bool) http.Header {
	h := make(http.Header, len(static)+3)
	h.Set(HeaderContentType, contentTypeJSON)

	for k, v := range static {
		// a blank Content-Type would drop the fixed header
		if strings.EqualFold(k, HeaderContentType) && strings.TrimSpace(v) == "" {
			continue
		}
		h.Set(k, v)
	}

	if adminRoute && admin != nil {
		h.Set(HeaderAuthorization, "Bearer "+admin.Token)
		h.Set(HeaderWalletAddress, admin.WalletAddress)
	}
	return h
}
