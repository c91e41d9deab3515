package ingest

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// AliasResolver maps a recipient local part to the owning user.
type AliasResolver struct {
	repo Repository
}

func NewAliasResolver(repo Repository) *AliasResolver {
	return &AliasResolver{repo: repo}
}

// Resolve returns the user of the newest active alias for localPart. found=false with a nil
// error means the event stays unbound until an alias is provisioned.
func (r *AliasResolver) Resolve(ctx context.Context, localPart string) (string, bool, error) {
	lp := NormalizeLocalPart(localPart)
	if lp == "" {
		return "", false, nil
	}

	alias, err := r.repo.FindActiveAlias(ctx, lp)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if strings.TrimSpace(alias.UserID) == "" {
		return "", false, nil
	}
	return alias.UserID, true, nil
}

// NormalizeLocalPart lower-cases and trims a routing token.
func NormalizeLocalPart(localPart string) string {
	return strings.ToLower(strings.TrimSpace(localPart))
}

// LocalPartFromAddress returns the text before "@", or "" when the address has none.
func LocalPartFromAddress(addr string) string {
	at := strings.Index(addr, "@")
	if at <= 0 {
		return ""
	}
	return NormalizeLocalPart(addr[:at])
}
