package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadSitemapsFile reads a YAML document of the form
//
//	high: [place-sitemap.xml]
//	medium: [restaurant-sitemap.xml]
//	low: [event-sitemap.xml]
//
// and returns it as a SitemapsConfig.
func LoadSitemapsFile(path string) (SitemapsConfig, error) {
	var sc SitemapsConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, eris.Wrapf(err, "config: read sitemaps file %s", path)
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sc, eris.Wrapf(err, "config: parse sitemaps file %s", path)
	}
	if len(sc.High)+len(sc.Medium)+len(sc.Low) == 0 {
		return sc, eris.Errorf("config: sitemaps file %s lists no sitemaps", path)
	}
	return sc, nil
}
