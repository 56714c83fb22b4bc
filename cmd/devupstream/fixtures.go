package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fixtures descreve o que o upstream de desenvolvimento devolve.
//
//	tenants:
//	  - id: acme
//	    hosts: [acme.com, docs.acme.com]
//	    notion_page_id: 1f2e...
//	    theme: gitbook
//	pages:
//	  1f2e...: {title: Home}
type fixtures struct {
	Tenants []tenantFixture           `yaml:"tenants"`
	Pages   map[string]map[string]any `yaml:"pages"`
}

type tenantFixture struct {
	ID           string   `yaml:"id" json:"id"`
	Hosts        []string `yaml:"hosts" json:"-"`
	NotionPageID string   `yaml:"notion_page_id" json:"notion_page_id,omitempty"`
	Theme        string   `yaml:"theme" json:"theme,omitempty"`
}

func loadFixtures(path string) (*fixtures, error) {
	fx := &fixtures{}
	if path == "" {
		return fx, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	if err := yaml.Unmarshal(raw, fx); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return fx, nil
}

func (fx *fixtures) byHost(host string) (tenantFixture, bool) {
	for _, t := range fx.Tenants {
		for _, h := range t.Hosts {
			if h == host {
				return t, true
			}
		}
	}
	return tenantFixture{}, false
}

func (fx *fixtures) byID(id string) (tenantFixture, bool) {
	for _, t := range fx.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return tenantFixture{}, false
}
