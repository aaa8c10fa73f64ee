package export

import (
	"sort"
	"strconv"
	"strings"

	"github.com/forest6511/acctvault/pkg/vault"
)

// DefaultGroupLabel is used when CategoryLabelTemplate is blank.
const DefaultGroupLabel = "{index}. {groupField}: {groupValue} ({count} total)"

// notSet replaces a blank group value in labels.
const notSet = "(not set)"

// TextConfig controls text export.
type TextConfig struct {
	Separator             string   `json:"separator"`
	Fields                []string `json:"fields"`
	IncludeStats          bool     `json:"include_stats"`
	AccountOrder          Order    `json:"account_order"`
	CategorySort          Order    `json:"category_sort"`
	CategoryLabelTemplate string   `json:"category_label_template,omitempty"`
}

// Order names a field and a direction ("desc"/"descending", anything
// else is ascending).
type Order struct {
	Field     string `json:"field,omitempty"`
	Direction string `json:"direction,omitempty"`
}

func (o Order) descending() bool {
	switch strings.ToLower(strings.TrimSpace(o.Direction)) {
	case "desc", "descending":
		return true
	}
	return false
}

type field struct {
	name  string
	value func(*vault.Account) string
	less  func(a, b *vault.Account) bool
}

func stringField(name string, get func(*vault.Account) string) field {
	return field{
		name:  name,
		value: get,
		less:  func(a, b *vault.Account) bool { return get(a) < get(b) },
	}
}

var fields = map[string]field{
	"id": {
		name:  "id",
		value: func(a *vault.Account) string { return strconv.FormatInt(a.ID, 10) },
		less:  func(a, b *vault.Account) bool { return a.ID < b.ID },
	},
	"email":       stringField("email", func(a *vault.Account) string { return a.Email }),
	"password":    stringField("password", func(a *vault.Account) string { return a.Password }),
	"recovery":    stringField("recovery", func(a *vault.Account) string { return a.Recovery }),
	"phone":       stringField("phone", func(a *vault.Account) string { return a.Phone }),
	"secret":      stringField("secret", func(a *vault.Account) string { return a.Secret }),
	"reg_year":    stringField("reg_year", func(a *vault.Account) string { return a.RegYear }),
	"country":     stringField("country", func(a *vault.Account) string { return a.Country }),
	"group_name":  stringField("group_name", func(a *vault.Account) string { return a.GroupName }),
	"remark":      stringField("remark", func(a *vault.Account) string { return a.Remark }),
	"status":      stringField("status", func(a *vault.Account) string { return a.Status }),
	"sold_status": stringField("sold_status", func(a *vault.Account) string { return a.SoldStatus }),
	"created_at":  stringField("created_at", func(a *vault.Account) string { return a.CreatedAt }),
	"updated_at":  stringField("updated_at", func(a *vault.Account) string { return a.UpdatedAt }),
	"deleted_at":  stringField("deleted_at", func(a *vault.Account) string { return a.DeletedAt }),
}

func lookupField(name string) (field, bool) {
	f, ok := fields[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Text renders accounts per cfg, preceded by a statistics block when
// cfg.IncludeStats is set. accounts is not modified.
func (r *Renderer) Text(accounts []*vault.Account, cfg TextConfig) string {
	var b strings.Builder
	if cfg.IncludeStats {
		writeStats(&b, accounts, r.timestamp())
	}

	sorted := make([]*vault.Account, len(accounts))
	copy(sorted, accounts)
	if f, ok := lookupField(cfg.AccountOrder.Field); ok {
		desc := cfg.AccountOrder.descending()
		sort.SliceStable(sorted, func(i, j int) bool {
			if desc {
				return f.less(sorted[j], sorted[i])
			}
			return f.less(sorted[i], sorted[j])
		})
	}

	if g, ok := lookupField(cfg.CategorySort.Field); ok {
		writeGrouped(&b, sorted, cfg, g)
	} else {
		for _, a := range sorted {
			b.WriteString(line(a, cfg))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// line joins the configured fields; unknown fields are empty.
func line(a *vault.Account, cfg TextConfig) string {
	values := make([]string, len(cfg.Fields))
	for i, name := range cfg.Fields {
		if f, ok := lookupField(name); ok {
			values[i] = f.value(a)
		}
	}
	return strings.Join(values, cfg.Separator)
}

func writeGrouped(b *strings.Builder, accounts []*vault.Account, cfg TextConfig, g field) {
	groups := make(map[string][]*vault.Account)
	var keys []string
	for _, a := range accounts {
		k := g.value(a)
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], a)
	}
	sort.Strings(keys)
	if cfg.CategorySort.descending() {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	tmpl := strings.TrimSpace(cfg.CategoryLabelTemplate)
	if tmpl == "" {
		tmpl = DefaultGroupLabel
	}

	for i, k := range keys {
		members := groups[k]
		b.WriteString(groupLabel(tmpl, g.name, k, len(members), i+1))
		b.WriteByte('\n')
		for _, a := range members {
			b.WriteString(line(a, cfg))
			b.WriteByte('\n')
		}
		if i+1 < len(keys) {
			b.WriteByte('\n')
		}
	}
}

func groupLabel(tmpl, fieldName, value string, count, index int) string {
	if strings.TrimSpace(value) == "" {
		value = notSet
	}
	return strings.NewReplacer(
		"{index}", strconv.Itoa(index),
		"{groupField}", fieldName,
		"{field}", fieldName,
		"{groupValue}", value,
		"{value}", value,
		"{count}", strconv.Itoa(count),
	).Replace(tmpl)
}
