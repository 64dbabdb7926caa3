package shopify

import (
	"context"
	"regexp"
	"strings"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

const orderGIDPrefix = "gid://shopify/Order/"

var orderGIDRe = regexp.MustCompile(`^gid://shopify/Order/[0-9]+$`)

// OrderFinder is the lookup surface the resolver needs; *Client satisfies it.
type OrderFinder interface {
	OrderByID(ctx context.Context, gid string) (string, bool, error)
	OrderByName(ctx context.Context, search string) (string, bool, error)
}

// Resolver maps a numeric id, "#1001" style name, or GID to the order's GID.
type Resolver struct {
	Finder OrderFinder
}

func NewResolver(f OrderFinder) *Resolver {
	return &Resolver{Finder: f}
}

// Resolve tries, in order: the GID as given, name:<digits>, name:#<digits>,
// and for bare numbers the legacy-id GID.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", apperr.New(apperr.OrderNotFound, "empty order reference")
	}

	if orderGIDRe.MatchString(ref) {
		gid, ok, err := r.Finder.OrderByID(ctx, ref)
		if err != nil {
			return "", err
		}
		if ok {
			return gid, nil
		}
		return "", apperr.Newf(apperr.OrderNotFound, "no order %s", ref)
	}

	digits := onlyDigits(ref)
	if digits == "" {
		return "", apperr.Newf(apperr.OrderNotFound, "unusable order reference %q", ref)
	}

	for _, search := range []string{"name:" + digits, "name:#" + digits} {
		gid, ok, err := r.Finder.OrderByName(ctx, search)
		if err != nil {
			return "", err
		}
		if ok {
			return gid, nil
		}
	}

	if digits == ref {
		gid, ok, err := r.Finder.OrderByID(ctx, orderGIDPrefix+digits)
		if err != nil {
			return "", err
		}
		if ok {
			return gid, nil
		}
	}

	return "", apperr.Newf(apperr.OrderNotFound, "no order matches %q", ref)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
