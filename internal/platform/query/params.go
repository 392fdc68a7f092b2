package query

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Params extracts filter parameters from the query string, excluding control
// parameters (_count, _page, _offset, sort, direction).
func Params(c echo.Context) map[string]string {
	params := map[string]string{}
	for k, v := range c.QueryParams() {
		if len(v) == 0 || strings.HasPrefix(k, "_") || k == "sort" || k == "direction" {
			continue
		}
		params[k] = v[0]
	}
	return params
}

// SortParams extracts the sort key and direction from the query string.
func SortParams(c echo.Context) (string, string) {
	return c.QueryParam("sort"), c.QueryParam("direction")
}

// WarnUnknown logs unrecognized filter keys. Silent in production builds.
func WarnUnknown(logger zerolog.Logger, env, resource string, plan *Plan) {
	if env == "production" || len(plan.Unknown()) == 0 {
		return
	}
	logger.Warn().
		Str("resource", resource).
		Strs("keys", plan.Unknown()).
		Msg("ignoring unrecognized filter keys")
}
