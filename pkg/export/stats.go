package export

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/forest6511/acctvault/pkg/vault"
)

type bucket struct {
	name  string
	count int
}

type counter map[string]int

func (c counter) add(key string) {
	if key != "" {
		c[key]++
	}
}

// byCount orders buckets by count descending, then name ascending.
func (c counter) byCount() []bucket {
	out := c.buckets()
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

func (c counter) byName() []bucket {
	out := c.buckets()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (c counter) buckets() []bucket {
	out := make([]bucket, 0, len(c))
	for k, v := range c {
		out = append(out, bucket{k, v})
	}
	return out
}

// splitTags splits a group_name on ASCII commas, full-width commas and whitespace.
func splitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || unicode.IsSpace(r)
	})
}

func writeStats(b *strings.Builder, accounts []*vault.Account, now string) {
	var pro, sold int
	groups, countries, years := counter{}, counter{}, counter{}
	for _, a := range accounts {
		if a.Status == vault.StatusPro {
			pro++
		}
		if a.SoldStatus == vault.SoldSold {
			sold++
		}
		for _, tag := range splitTags(a.GroupName) {
			groups.add(tag)
		}
		countries.add(a.Country)
		years.add(a.RegYear)
	}
	total := len(accounts)

	b.WriteString("========== Account Summary ==========\n")
	fmt.Fprintf(b, "Export time: %s\n", now)
	fmt.Fprintf(b, "Total accounts: %d\n", total)
	fmt.Fprintf(b, "Pro: %d | Normal: %d\n", pro, total-pro)
	fmt.Fprintf(b, "Sold: %d | Unsold: %d\n", sold, total-sold)

	section := func(title string, buckets []bucket) {
		if len(buckets) == 0 {
			return
		}
		fmt.Fprintf(b, "\n%s:\n", title)
		for _, bk := range buckets {
			fmt.Fprintf(b, "  - %s: %d\n", bk.name, bk.count)
		}
	}
	section("Groups", groups.byCount())
	section("Countries", countries.byCount())
	section("Registration years", years.byName())

	b.WriteString("=====================================\n\n")
}
