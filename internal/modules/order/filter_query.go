// README: Query-string form of Filter shared by the HTTP API and its client.
package order

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"kitchenline/internal/types"
)

// Values encodes f as status=a,b&orderType=..&driverId=..&customerName=..&from=..&to=.. (RFC 3339).
func (f Filter) Values() url.Values {
	v := url.Values{}
	if len(f.Statuses) > 0 {
		parts := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			parts[i] = string(s)
		}
		v.Set("status", strings.Join(parts, ","))
	}
	if f.OrderType != "" {
		v.Set("orderType", string(f.OrderType))
	}
	if f.DriverID != "" {
		v.Set("driverId", f.DriverID.String())
	}
	if f.CustomerName != "" {
		v.Set("customerName", f.CustomerName)
	}
	if f.From != nil {
		v.Set("from", f.From.UTC().Format(time.RFC3339Nano))
	}
	if f.To != nil {
		v.Set("to", f.To.UTC().Format(time.RFC3339Nano))
	}
	return v
}

// ParseFilter is the inverse of Values. Unknown statuses or types fail with ErrBadRequest.
func ParseFilter(v url.Values) (Filter, error) {
	var f Filter
	if raw := v.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s := Status(strings.TrimSpace(part))
			if !s.Valid() {
				return Filter{}, badRequest(fmt.Sprintf("unknown status %q", part))
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	if raw := v.Get("orderType"); raw != "" {
		f.OrderType = Type(raw)
		if !f.OrderType.Valid() {
			return Filter{}, badRequest(fmt.Sprintf("unknown order type %q", raw))
		}
	}
	f.DriverID = types.ID(v.Get("driverId"))
	f.CustomerName = v.Get("customerName")
	var err error
	if f.From, err = parseTimeParam(v, "from"); err != nil {
		return Filter{}, err
	}
	if f.To, err = parseTimeParam(v, "to"); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parseTimeParam(v url.Values, key string) (*time.Time, error) {
	raw := v.Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, badRequest(fmt.Sprintf("%s must be RFC 3339", key))
	}
	return &t, nil
}
