package raster

import (
	"fmt"
	"strconv"
	"strings"
)

// EPSGSpatialRef is the SpatialRef used for a coordinate system known only
// by its EPSG code.
func EPSGSpatialRef(code int) string {
	return fmt.Sprintf("EPSG:%d", code)
}

// EPSGCode finds the EPSG code of a coordinate system description. It
// understands "EPSG:32633", OGC URNs and URLs, CRS84, and WKT whose root
// node carries an EPSG AUTHORITY or ID. ESRI WKT without an authority is
// only recognized for plain WGS 84 geographic coordinates.
func EPSGCode(ref string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(ref))
	if s == "" {
		return 0, false
	}

	if strings.HasSuffix(s, "CRS84") {
		return 4326, true
	}

	for _, prefix := range []string{"EPSG:", "URN:OGC:DEF:CRS:EPSG:", "HTTP://WWW.OPENGIS.NET/DEF/CRS/EPSG/"} {
		if !strings.HasPrefix(s, prefix) {
			continue
		}

		// The URN and URL forms carry a version before the code
		rest := s[len(prefix):]
		if i := strings.LastIndexAny(rest, ":/"); i >= 0 {
			rest = rest[i+1:]
		}

		code, err := strconv.Atoi(rest)
		return code, err == nil && code > 0
	}

	return wktEPSGCode(s)
}

func wktEPSGCode(s string) (int, bool) {
	open := strings.IndexAny(s, "[(")
	if open < 0 {
		return 0, false
	}
	root := strings.TrimSpace(s[:open])

	depth := 0
	inQuote := false
	code, found := 0, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[' || c == '(':
			depth++
		case c == ']' || c == ')':
			depth--
		case c == ',' && depth == 1:
			// A direct child of the root node starts here
			if v, ok := authorityCode(s[i+1:]); ok {
				code, found = v, true
			}
		}
	}
	if found {
		return code, true
	}

	if root == "GEOGCS" && (strings.Contains(s, "WGS_1984") || strings.Contains(s, "WGS 84") || strings.Contains(s, "WGS84")) {
		return 4326, true
	}

	return 0, false
}

// authorityCode parses AUTHORITY["EPSG","32633"] or ID["EPSG",32633] at the
// start of s.
func authorityCode(s string) (int, bool) {
	s = strings.TrimSpace(s)

	var body string
	for _, keyword := range []string{"AUTHORITY", "ID"} {
		if !strings.HasPrefix(s, keyword) {
			continue
		}
		rest := strings.TrimSpace(s[len(keyword):])
		if rest == "" || (rest[0] != '[' && rest[0] != '(') {
			return 0, false
		}
		end := strings.IndexAny(rest, "])")
		if end < 0 {
			return 0, false
		}
		body = rest[1:end]
	}
	if body == "" {
		return 0, false
	}

	parts := strings.Split(body, ",")
	if len(parts) < 2 || strings.Trim(strings.TrimSpace(parts[0]), `"`) != "EPSG" {
		return 0, false
	}

	code, err := strconv.Atoi(strings.Trim(strings.TrimSpace(parts[1]), `"`))
	return code, err == nil && code > 0
}
