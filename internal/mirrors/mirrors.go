// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mirrors holds the ordered pool of SearXNG meta-search instances the
// search adapter falls back to when the primary provider is unavailable.
package mirrors

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// defaultMirrors is the built-in pool, in preference order.
var defaultMirrors = []string{
	"https://priv.au/",
	"https://searx.tiekoetter.com/",
	"https://searxng.hweeren.com/",
	"https://searxng.f24o.zip/",
	"https://search.mdosch.de/",
	"https://www.gruble.de/",
	"https://search.leptons.xyz/",
	"https://search.rowie.at/",
	"https://find.xenorio.xyz/",
	"https://search.nordh.tech/",
	"https://search.im-in.space/",
	"https://search.canine.tools/",
	"https://searx.tuxcloud.net/",
	"https://searxng.deliberate.world/",
	"https://search.080609.xyz/",
	"https://baresearch.org/",
	"https://searx.perennialte.ch/",
	"https://search.ononoki.org/",
	"https://searx.namejeff.xyz/",
	"https://searx.stream/",
	"https://searx.lunar.icu/",
	"https://search.privacyredirect.com/",
	"https://search.sapti.me/",
	"https://searxng.biz/",
	"https://search.einfachzocken.eu/",
	"https://search.inetol.net/",
	"https://search.hbubli.cc/",
	"https://search.rhscz.eu/",
	"https://searx.rhscz.eu/",
	"https://searx.dresden.network/",
	"https://searx.foobar.vip/",
	"https://opnxng.com/",
	"https://searxng.site/",
	"https://search.citw.lgbt/",
	"https://kantan.cat/",
	"https://searx.ppeb.me/",
	"https://searxng.shreven.org/",
	"https://searx.ro/",
	"https://searxng.website/",
	"https://copp.gg/",
	"https://paulgo.io/",
	"https://searx.sev.monster/",
	"https://search.federicociro.com/",
	"https://northboot.xyz/",
	"https://searx.party/",
	"https://searx.juancord.xyz/",
	"https://searx.foss.family/",
	"https://darmarit.org/searx/",
	"https://search.nerdvpn.de/",
	"https://fairsuch.net/",
	"https://search.url4irl.com/",
	"https://searx.mxchange.org/",
	"https://s.mble.dk/",
	"https://ooglester.com/",
	"https://metacat.online/",
	"https://searx.thefloatinglab.world/",
	"https://searx.oloke.xyz/",
	"https://search.oh64.moe/",
	"https://searx.mbuf.net/",
	"https://etsi.me/",
	"https://sx.catgirl.cloud/",
	"https://searx.ox2.fr/",
	"https://s.datuan.dev/",
	"https://searx.ankha.ac/",
	"https://nyc1.sx.ggtyler.dev/",
	"https://searx.zhenyapav.com/",
	"https://search.indst.eu/",
	"https://seek.fyi/",
	"https://search.goober.cloud/",
	"https://search.ohaa.xyz/",
	"https://search.librenode.com/",
}

// Registry is an immutable, ordered list of mirror base URLs. Every entry
// ends with a slash.
type Registry struct {
	urls []string
}

// Default returns the built-in mirror pool.
func Default() *Registry {
	r, err := New(defaultMirrors)
	if err != nil {
		panic(err)
	}
	return r
}

// New validates and normalizes urls into a Registry. Entries must be absolute
// http or https URLs; blanks are skipped, duplicates keep their first
// position, and a trailing slash is added where missing.
func New(urls []string) (*Registry, error) {
	seen := make(map[string]bool, len(urls))
	r := &Registry{}
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("mirror %q: %w", raw, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("mirror %q: must be an absolute http(s) URL", raw)
		}
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		if seen[raw] {
			continue
		}
		seen[raw] = true
		r.urls = append(r.urls, raw)
	}
	if len(r.urls) == 0 {
		return nil, fmt.Errorf("mirror registry is empty")
	}
	return r, nil
}

// mirrorFile is the on-disk YAML layout accepted by Load.
type mirrorFile struct {
	Mirrors []string `yaml:"mirrors"`
}

// Load reads a YAML mirror list. The file may be either a bare sequence of
// URLs or a mapping with a "mirrors" key.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mirror file: %w", err)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err != nil {
		var mf mirrorFile
		if err2 := yaml.Unmarshal(data, &mf); err2 != nil {
			return nil, fmt.Errorf("parsing mirror file %s: %w", path, err2)
		}
		list = mf.Mirrors
	}
	return New(list)
}

// URLs returns a copy of the mirror base URLs in preference order.
func (r *Registry) URLs() []string {
	out := make([]string, len(r.urls))
	copy(out, r.urls)
	return out
}

// Len returns the number of mirrors.
func (r *Registry) Len() int { return len(r.urls) }

// SearchURL builds the HTML search URL for query on the mirror at base.
func SearchURL(base, query string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	params := url.Values{
		"q":          {query},
		"categories": {"general"},
		"language":   {"en"},
		"safesearch": {"1"},
		"theme":      {"simple"},
	}
	return base + "search?" + params.Encode()
}
