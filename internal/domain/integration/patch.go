package integration

import (
	"fmt"
	"strings"

	"github.com/cassiomorais/integrations/internal/domain/errors"
)

// Patch is a set of field updates. Nil fields are left untouched.
type Patch struct {
	Name      *string
	ShortName *string
	Order     *int
	AllowAPI  *bool
	Status    *Status
}

// fieldAliases maps caller-supplied keys onto canonical field names.
var fieldAliases = map[string]string{
	"name":        "name",
	"nome":        "name",
	"short_name":  "short_name",
	"shortname":   "short_name",
	"shortName":   "short_name",
	"order":       "order",
	"ordem":       "order",
	"allow_api":   "allow_api",
	"allowApi":    "allow_api",
	"permitirAPI": "allow_api",
	"permitirApi": "allow_api",
}

// ParsePatch maps a loosely keyed document into a Patch. Unknown keys are rejected
// so callers cannot smuggle non-editable fields such as status or credentials.
func ParsePatch(raw map[string]any) (Patch, error) {
	var p Patch
	for key, value := range raw {
		field, ok := fieldAliases[key]
		if !ok {
			return Patch{}, errors.NewValidationError(key, "is not an editable field")
		}
		switch field {
		case "name":
			s, ok := value.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return Patch{}, errors.NewValidationError("name", "must be a non-empty string")
			}
			s = strings.TrimSpace(s)
			p.Name = &s
		case "short_name":
			s, ok := value.(string)
			if !ok {
				return Patch{}, errors.NewValidationError("short_name", "must be a string")
			}
			s = NormalizeShortName(s, "")
			if s == "" {
				return Patch{}, errors.NewValidationError("short_name", "cannot be empty")
			}
			p.ShortName = &s
		case "order":
			n, err := toInt(value)
			if err != nil {
				return Patch{}, errors.NewValidationError("order", err.Error())
			}
			p.Order = &n
		case "allow_api":
			b, ok := value.(bool)
			if !ok {
				return Patch{}, errors.NewValidationError("allow_api", "must be a boolean")
			}
			p.AllowAPI = &b
		}
	}
	return p, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("must be an integer")
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("must be a number")
	}
}

// Diff keeps only the fields of p that differ from the stored integration.
func (i *Integration) Diff(p Patch) Patch {
	var d Patch
	if p.Name != nil && *p.Name != i.Name {
		d.Name = p.Name
	}
	if p.ShortName != nil && *p.ShortName != i.ShortName {
		d.ShortName = p.ShortName
	}
	if p.Order != nil && *p.Order != i.Order {
		d.Order = p.Order
	}
	if p.AllowAPI != nil && *p.AllowAPI != i.AllowAPI {
		d.AllowAPI = p.AllowAPI
	}
	if p.Status != nil && *p.Status != i.Status {
		d.Status = p.Status
	}
	return d
}

// Apply writes the non-nil fields of p onto the integration.
func (i *Integration) Apply(p Patch) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.ShortName != nil {
		i.ShortName = *p.ShortName
	}
	if p.Order != nil {
		i.Order = *p.Order
	}
	if p.AllowAPI != nil {
		i.AllowAPI = *p.AllowAPI
	}
	if p.Status != nil {
		i.Status = *p.Status
	}
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.ShortName == nil && p.Order == nil && p.AllowAPI == nil && p.Status == nil
}

// Fields lists the canonical names of the fields the patch touches.
func (p Patch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.ShortName != nil {
		fields = append(fields, "short_name")
	}
	if p.Order != nil {
		fields = append(fields, "order")
	}
	if p.AllowAPI != nil {
		fields = append(fields, "allow_api")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}
