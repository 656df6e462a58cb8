package identity

import (
	"encoding/json"
	"fmt"
)

// RoleSuperAdmin is the highest-privilege role. It is granted every feature.
const RoleSuperAdmin = "super_admin"

// Feature identifies a console module/screen for permission lookups.
type Feature string

const (
	FeatureDashboard     Feature = "dashboard"
	FeatureUsers         Feature = "users"
	FeatureKYC           Feature = "kyc"
	FeatureWallets       Feature = "wallets"
	FeatureTransactions  Feature = "transactions"
	FeatureFiat          Feature = "fiat"
	FeatureGiftCards     Feature = "giftcards"
	FeatureRates         Feature = "rates"
	FeatureNotifications Feature = "notifications"
	FeatureAdmins        Feature = "admins"
	FeatureSettings      Feature = "settings"
)

var allFeatures = []Feature{
	FeatureDashboard,
	FeatureUsers,
	FeatureKYC,
	FeatureWallets,
	FeatureTransactions,
	FeatureFiat,
	FeatureGiftCards,
	FeatureRates,
	FeatureNotifications,
	FeatureAdmins,
	FeatureSettings,
}

var featureTitles = map[Feature]string{
	FeatureDashboard:     "Dashboard",
	FeatureUsers:         "Users",
	FeatureKYC:           "KYC Review",
	FeatureWallets:       "Wallets",
	FeatureTransactions:  "Transactions",
	FeatureFiat:          "Fiat On/Off-Ramp",
	FeatureGiftCards:     "Gift Cards",
	FeatureRates:         "Rates",
	FeatureNotifications: "Notifications",
	FeatureAdmins:        "Admins",
	FeatureSettings:      "Settings",
}

// AllFeatures returns every known feature in navigation order.
func AllFeatures() []Feature {
	out := make([]Feature, len(allFeatures))
	copy(out, allFeatures)
	return out
}

// ParseFeature returns the feature for key, or an error if key is not a known feature.
func ParseFeature(key string) (Feature, error) {
	f := Feature(key)
	if _, ok := featureTitles[f]; !ok {
		return "", fmt.Errorf("unknown feature %q", key)
	}
	return f, nil
}

// Title is the navigation label for the feature.
func (f Feature) Title() string {
	if t, ok := featureTitles[f]; ok {
		return t
	}
	return string(f)
}

// FeatureAccess is the backend-supplied feature => allowed map. It is advisory and only drives UI.
type FeatureAccess map[Feature]bool

func (fa FeatureAccess) Clone() FeatureAccess {
	if fa == nil {
		return nil
	}
	out := make(FeatureAccess, len(fa))
	for k, v := range fa {
		out[k] = v
	}
	return out
}

// Profile is the signed-in admin as returned by the backend.
type Profile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// UnmarshalJSON also accepts the backend's "_id" and "name" spellings.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string   `json:"id"`
		MongoID     string   `json:"_id"`
		Email       string   `json:"email"`
		DisplayName string   `json:"displayName"`
		Name        string   `json:"name"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Profile{
		ID:          raw.ID,
		Email:       raw.Email,
		DisplayName: raw.DisplayName,
		Role:        raw.Role,
		Permissions: raw.Permissions,
	}
	if p.ID == "" {
		p.ID = raw.MongoID
	}
	if p.DisplayName == "" {
		p.DisplayName = raw.Name
	}
	return nil
}

func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.Permissions != nil {
		out.Permissions = append([]string(nil), p.Permissions...)
	}
	return &out
}

// IsSuperAdmin reports whether the profile holds the highest-privilege role.
func (p *Profile) IsSuperAdmin() bool {
	return p != nil && p.Role == RoleSuperAdmin
}
