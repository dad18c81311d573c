package venue

import (
	"os"
	"strings"
)

// credentialFields is the fixed key schema from spec section 6:
// {VENUE_FAMILY}_{FIELD} for each of these fields.
var credentialFields = []string{
	"apiKey", "secret", "uid", "accountId", "login", "password",
	"twofa", "privateKey", "walletAddress", "token",
}

// Credentials holds whatever subset of the fixed field schema was present in
// the environment for a venue family.
type Credentials map[string]string

// familyAlias folds venue-family aliases so a single credential set covers
// related venues: a "*futures" suffix maps to the spot family.
func familyAlias(venueID string) string {
	return strings.TrimSuffix(venueID, "futures")
}

// LoadCredentials reads {FAMILY}_{FIELD} environment variables for venueID,
// applying family-alias folding and re-expanding literal "\n" sequences
// (needed for PEM-encoded private keys passed through shell environments).
func LoadCredentials(venueID string) Credentials {
	family := strings.ToUpper(familyAlias(venueID))
	creds := make(Credentials)
	for _, field := range credentialFields {
		key := family + "_" + field
		val, ok := lookupCaseInsensitiveEnv(key)
		if !ok || val == "" {
			continue
		}
		creds[field] = strings.ReplaceAll(val, `\n`, "\n")
	}
	return creds
}

// Authenticated reports whether any credential field was found; spec section
// 7 treats a venue with no credentials as simply unauthenticated, never a
// fatal startup error.
func (c Credentials) Authenticated() bool {
	return len(c) > 0
}

func lookupCaseInsensitiveEnv(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return os.LookupEnv(strings.ToUpper(key))
}
