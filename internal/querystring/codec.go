// Package querystring converts list search options to and from the query
// string of a console URL.
package querystring

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
	"github.com/spf13/cast"

	"github.com/pitabwire/flagconsole/model"
)

// Encode serializes options into a URL query string with keys in sorted
// order. Keys whose value is nil are omitted.
func Encode(options model.SearchOptions) string {
	values := make(url.Values, len(options))
	for k, v := range options {
		if v == nil {
			continue
		}
		values.Set(k, formatValue(v))
	}
	return values.Encode()
}

// EncodeStruct serializes a typed options struct using its `url` tags.
func EncodeStruct(v any) (string, error) {
	values, err := query.Values(v)
	if err != nil {
		return "", err
	}
	return values.Encode(), nil
}

// Decode parses a query string into search options. Every value decodes as a
// string; consumers coerce with Int, Tristate and friends. Malformed pairs are
// skipped and the rest is kept. Repeated keys keep their first value.
func Decode(raw string) model.SearchOptions {
	raw = strings.TrimPrefix(raw, "?")
	out := make(model.SearchOptions)
	if raw == "" {
		return out
	}
	// ParseQuery keeps every pair that decoded even when it reports an error.
	values, _ := url.ParseQuery(raw)
	for k, vs := range values {
		if k == "" || len(vs) == 0 {
			continue
		}
		out[k] = vs[0]
	}
	return out
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case *bool:
		if t == nil {
			return ""
		}
		return strconv.FormatBool(*t)
	default:
		return cast.ToString(v)
	}
}
