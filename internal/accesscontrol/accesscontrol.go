package accesscontrol

import (
	"net/url"
	"strings"

	"github.com/lachlan2k/gatekeep/internal/identity"
)

// FeaturePathPrefix is where feature screens live in the console.
const FeaturePathPrefix = "/app/"

// HasFeatureAccess is the single permission gate for every screen and navigation entry.
// Super admins see everything; everyone else needs an explicit true in the access map.
// A missing profile, a nil map, or an absent key all deny.
func HasFeatureAccess(profile *identity.Profile, access identity.FeatureAccess, feature identity.Feature) bool {
	if profile == nil {
		return false
	}

	if profile.IsSuperAdmin() {
		return true
	}

	// Indexing a nil map is fine and yields false
	return access[feature]
}

// VisibleFeatures filters features down to those the gate allows, preserving order.
func VisibleFeatures(profile *identity.Profile, access identity.FeatureAccess, features []identity.Feature) []identity.Feature {
	visible := make([]identity.Feature, 0, len(features))

	for _, f := range features {
		if HasFeatureAccess(profile, access, f) {
			visible = append(visible, f)
		}
	}

	return visible
}

// VerifyRedirectPath reports whether a post-login redirect target is safe to follow: a local
// feature screen path and nothing else. Absolute URLs, scheme-relative URLs and traversal are refused.
func VerifyRedirectPath(redirect string) bool {
	if !strings.HasPrefix(redirect, FeaturePathPrefix) || strings.ContainsAny(redirect, "\\\r\n") {
		return false
	}

	u, err := url.Parse(redirect)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return false
	}

	for _, segment := range strings.Split(u.Path, "/") {
		if segment == ".." || segment == "." {
			return false
		}
	}

	return len(u.Path) > len(FeaturePathPrefix)
}
