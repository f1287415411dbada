package config

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// INI is a koanf.Parser for INI files. Each section becomes a nested
// map; keys outside any section stay at the top level.
type INI struct{}

func INIParser() *INI {
	return &INI{}
}

func (p *INI) Unmarshal(b []byte) (map[string]interface{}, error) {
	f, err := ini.Load(b)
	if err != nil {
		return nil, fmt.Errorf("parse ini: %w", err)
	}

	out := make(map[string]interface{})
	for _, sec := range f.Sections() {
		keys := sec.KeysHash()
		if len(keys) == 0 {
			continue
		}
		if sec.Name() == ini.DefaultSection {
			for k, v := range keys {
				out[k] = v
			}
			continue
		}
		m := make(map[string]interface{}, len(keys))
		for k, v := range keys {
			m[k] = v
		}
		out[sec.Name()] = m
	}
	return out, nil
}

func (p *INI) Marshal(o map[string]interface{}) ([]byte, error) {
	f := ini.Empty()

	names := make([]string, 0, len(o))
	for k := range o {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := o[name].(type) {
		case map[string]interface{}:
			sec, err := f.NewSection(name)
			if err != nil {
				return nil, err
			}
			for k, val := range v {
				if _, err := sec.NewKey(k, fmt.Sprint(val)); err != nil {
					return nil, err
				}
			}
		default:
			if _, err := f.Section(ini.DefaultSection).NewKey(name, fmt.Sprint(v)); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
