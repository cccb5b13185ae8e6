// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the alif retrieval pipeline:
// categories, planned queries, search hits, scraped sources, run progress,
// synthesized answers, and per-stage configuration.
package types

import (
	"fmt"
	"strings"
)

// Category is one tradition bucket the pipeline searches under. Categories
// are defined once at startup and never mutated afterwards.
type Category struct {
	// Key is the stable identifier (e.g. "judaism").
	Key string `json:"key" yaml:"key"`

	// Label is the display label (e.g. "JUDAISM").
	Label string `json:"label" yaml:"label"`

	// Domains is the allow-list of authoritative sites for this tradition.
	// An empty list disables domain filtering.
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// HasDomains reports whether the category restricts results to an allow-list.
func (c Category) HasDomains() bool { return len(c.Domains) > 0 }

// AllowsHost reports whether host contains one of the allow-listed domains.
// Categories without an allow-list allow every host.
func (c Category) AllowsHost(host string) bool {
	if !c.HasDomains() {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range c.Domains {
		if d != "" && strings.Contains(host, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// Categories is an ordered, immutable category table. Order is the planner
// order used for batching and for the final aggregated source list.
type Categories struct {
	list  []Category
	index map[string]int
}

// NewCategories validates and indexes cats. Keys must be non-empty and unique.
func NewCategories(cats []Category) (Categories, error) {
	c := Categories{index: make(map[string]int, len(cats))}
	for _, cat := range cats {
		key := strings.ToLower(strings.TrimSpace(cat.Key))
		if key == "" {
			return Categories{}, fmt.Errorf("category with empty key")
		}
		if _, dup := c.index[key]; dup {
			return Categories{}, fmt.Errorf("duplicate category %q", key)
		}
		cat.Key = key
		if cat.Label == "" {
			cat.Label = strings.ToUpper(key)
		}
		cat.Domains = append([]string(nil), cat.Domains...)
		c.index[key] = len(c.list)
		c.list = append(c.list, cat)
	}
	return c, nil
}

// List returns a copy of the categories in order.
func (c Categories) List() []Category {
	out := make([]Category, len(c.list))
	copy(out, c.list)
	return out
}

// Keys returns the category keys in order.
func (c Categories) Keys() []string {
	keys := make([]string, len(c.list))
	for i, cat := range c.list {
		keys[i] = cat.Key
	}
	return keys
}

// Len returns the number of categories.
func (c Categories) Len() int { return len(c.list) }

// Get returns the category for key.
func (c Categories) Get(key string) (Category, bool) {
	i, ok := c.index[strings.ToLower(key)]
	if !ok {
		return Category{}, false
	}
	return c.list[i], true
}

// Only returns the subset of categories named in keys, keeping table order.
// Unknown keys are reported as an error. An empty keys slice returns c.
func (c Categories) Only(keys []string) (Categories, error) {
	if len(keys) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if _, ok := c.index[k]; !ok {
			return Categories{}, fmt.Errorf("unknown category %q", k)
		}
		want[k] = true
	}
	var subset []Category
	for _, cat := range c.list {
		if want[cat.Key] {
			subset = append(subset, cat)
		}
	}
	return NewCategories(subset)
}

// DefaultCategories returns the built-in tradition table: six religions and
// one secular philosophy bucket.
func DefaultCategories() Categories {
	c, err := NewCategories([]Category{
		{Key: "judaism", Label: "JUDAISM", Domains: []string{
			"sefaria.org", "chabad.org", "myjewishlearning.com", "askmoses.com",
			"dinonline.org", "jewishvirtuallibrary.com", "rabanan.org", "airish.org",
		}},
		{Key: "christianity", Label: "CHRISTIANITY", Domains: []string{
			"biblegateway.com", "christianity.com", "gotquestions.org", "catholic.com", "orthodoxwiki.org",
		}},
		{Key: "islam", Label: "ISLAM", Domains: []string{
			"quran.com", "islamqa.info", "islamweb.net", "al-islam.org", "sunnah.com",
		}},
		{Key: "hinduism", Label: "HINDUISM", Domains: []string{
			"vedabase.io", "hinduwebsite.com", "bhagavad-gita.org", "vedanta.org", "hinduismtoday.com",
		}},
		{Key: "sikhism", Label: "SIKHISM", Domains: []string{
			"sikhnet.com", "sikhs.org", "searchgurbani.com", "srigranth.org", "sikhiwiki.org",
		}},
		{Key: "buddhism", Label: "BUDDHISM", Domains: []string{
			"accesstoinsight.org", "dhammatalks.org", "buddhanet.net", "tricycle.org", "suttacentral.net",
		}},
		{Key: "philosophy", Label: "PHILOSOPHY"},
	})
	if err != nil {
		panic(err)
	}
	return c
}
