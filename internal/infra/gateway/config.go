package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"paybridge/internal/domain/model"
)

// missingConfigKeys reports every absent or empty required key so operators
// can fix a config in one pass instead of one error at a time.
func missingConfigKeys(cfg *model.ResolvedConfig, required []string) []string {
	var missing []string
	for _, k := range required {
		if v, ok := cfg.Field(k); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// headerValue does a case-insensitive header lookup. Router middleware and
// test fixtures disagree on canonical casing, so adapters never assume it.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// formatRupees renders paise as a "123.45" rupee string for providers that
// take decimal amounts.
func formatRupees(paise int64) string {
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}

// parseRupees converts a decimal rupee string back to paise. Providers echo
// amounts as "500.00", "500.0" or "500"; all map to 50000.
func parseRupees(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	rupees, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	if frac == "" {
		return rupees * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	paise, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return rupees*100 + paise, nil
}
