// Package catalog turns the free-text labels of an event request into the
// closed values a listing stores: category, venue type, capacity and slug.
package catalog

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventhub/internal/model"
)

const DefaultCapacity = 100

var (
	nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)
	integerRun = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+`)
	base36     = big.NewInt(36)
)

// ResolveCategory matches a label against the known categories, ignoring case.
// Exact name or slug wins, then a category name found inside the label, then
// the label found inside a category name. Longer names win ties.
func ResolveCategory(label string, categories []model.Category) (model.Category, error) {
	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" {
		return model.Category{}, model.ErrCategoryNotFound
	}

	for _, c := range categories {
		if strings.ToLower(c.Name) == needle || strings.ToLower(c.Slug) == needle {
			return c, nil
		}
	}

	if c, ok := longestMatch(categories, func(name string) bool { return strings.Contains(needle, name) }); ok {
		return c, nil
	}
	if c, ok := longestMatch(categories, func(name string) bool { return strings.Contains(name, needle) }); ok {
		return c, nil
	}
	return model.Category{}, model.ErrCategoryNotFound
}

func longestMatch(categories []model.Category, match func(name string) bool) (model.Category, bool) {
	var (
		best  model.Category
		found bool
	)
	for _, c := range categories {
		name := strings.ToLower(c.Name)
		if name == "" || !match(name) {
			continue
		}
		if !found || len(c.Name) > len(best.Name) {
			best, found = c, true
		}
	}
	return best, found
}

// ResolveVenueType maps a venue label to the closed enum. Unknown labels are INDOOR.
func ResolveVenueType(label string) model.VenueType {
	l := strings.ToLower(label)
	indoor := strings.Contains(l, "indoor")
	outdoor := strings.Contains(l, "outdoor")

	switch {
	case strings.Contains(l, "hybrid"):
		return model.VenueHybrid
	case strings.Contains(l, "virtual"), strings.Contains(l, "online"):
		return model.VenueVirtual
	case strings.Contains(l, "mixed"), strings.Contains(l, "both"), indoor && outdoor:
		return model.VenueMixed
	case outdoor:
		return model.VenueOutdoor
	case indoor:
		return model.VenueIndoor
	}
	return model.VenueIndoor
}

// ParseCapacity reads an attendance bucket such as "1001-5000" or "5,000+"
// and returns the largest integer in it, or def when there is none.
// Numbers that do not fit a 32-bit capacity column are ignored.
func ParseCapacity(label string, def int) int {
	best := 0
	for _, raw := range integerRun.FindAllString(label, -1) {
		n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 32)
		if err != nil {
			continue
		}
		if int(n) > best {
			best = int(n)
		}
	}
	if best <= 0 {
		return def
	}
	return best
}

func Slugify(name string) string {
	s := nonSlugRun.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "event"
	}
	return s
}

// UniqueSlug appends a time-derived token and a random tail to the slugified name.
// Storage still enforces uniqueness; callers retry on conflict.
func UniqueSlug(name string, now time.Time) (string, error) {
	tail, err := randomBase36(4)
	if err != nil {
		return "", err
	}
	return Slugify(name) + "-" + strconv.FormatInt(now.UnixMilli(), 36) + tail, nil
}

func randomBase36(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, base36)
		if err != nil {
			return "", err
		}
		b.WriteString(strconv.FormatInt(d.Int64(), 36))
	}
	return b.String(), nil
}
