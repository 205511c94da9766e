package app

import (
	"context"

	"github.com/campfirehq/hestia/internal/domain/lifecycle"
)

// RenderFunc runs just before a page is returned in a PAGE response,
// letting the app fill dynamic content such as ENUM option lists.
type RenderFunc func(ctx context.Context, p *Page) error

// Page is a configuration page under construction and its render hook.
type Page struct {
	data   lifecycle.PageData
	render RenderFunc
}

// ID returns the page id.
func (p *Page) ID() string { return p.data.PageID }

// Render registers the page's render hook.
func (p *Page) Render(fn RenderFunc) *Page {
	p.render = fn
	return p
}

// Section appends a section to the page.
func (p *Page) Section(name string) *Section {
	p.data.Sections = append(p.data.Sections, lifecycle.PageSection{Name: name})
	return &Section{page: p, idx: len(p.data.Sections) - 1}
}

// Data renders the page and returns its wire form. The render hook runs
// against a deep copy of the declared page: the definition is never
// mutated, and concurrent renders of the same page do not share state.
// Hooks address fields on the page they receive via Setting.
func (p *Page) Data(ctx context.Context) (*lifecycle.PageData, error) {
	out := p.clone()
	if p.render != nil {
		if err := p.render(ctx, out); err != nil {
			return nil, err
		}
	}
	return &out.data, nil
}

// Setting returns a handle to the setting with the given id, searching
// every section, or false when the page has no such setting.
func (p *Page) Setting(id string) (*Setting, bool) {
	for si := range p.data.Sections {
		for fi := range p.data.Sections[si].Settings {
			if p.data.Sections[si].Settings[fi].ID == id {
				return &Setting{section: &Section{page: p, idx: si}, idx: fi}, true
			}
		}
	}
	return nil, false
}

func (p *Page) clone() *Page {
	out := &Page{data: p.data}
	out.data.Sections = make([]lifecycle.PageSection, len(p.data.Sections))
	for i, sec := range p.data.Sections {
		cs := sec
		cs.Settings = make([]lifecycle.PageSetting, len(sec.Settings))
		for j, set := range sec.Settings {
			cf := set
			cf.Options = append([]lifecycle.SettingOption(nil), set.Options...)
			cf.Capabilities = append([]string(nil), set.Capabilities...)
			cf.Permissions = append([]string(nil), set.Permissions...)
			cs.Settings[j] = cf
		}
		out.data.Sections[i] = cs
	}
	return out
}

// Section builds the settings of one page section.
type Section struct {
	page *Page
	idx  int
}

// Setting appends an input field to the section.
func (s *Section) Setting(id, name string, typ lifecycle.SettingType) *Setting {
	sec := &s.page.data.Sections[s.idx]
	sec.Settings = append(sec.Settings, lifecycle.PageSetting{
		ID:   id,
		Name: name,
		Type: typ,
	})
	return &Setting{section: s, idx: len(sec.Settings) - 1}
}

// Setting configures one input field fluently.
type Setting struct {
	section *Section
	idx     int
}

func (s *Setting) field() *lifecycle.PageSetting {
	return &s.section.page.data.Sections[s.section.idx].Settings[s.idx]
}

// Required marks the setting as mandatory.
func (s *Setting) Required() *Setting {
	s.field().Required = true
	return s
}

// Multiple allows selecting more than one value.
func (s *Setting) Multiple() *Setting {
	s.field().Multiple = true
	return s
}

// Description sets the helper text shown under the field.
func (s *Setting) Description(text string) *Setting {
	s.field().Description = text
	return s
}

// Capabilities restricts a DEVICE setting to devices with the given
// capabilities and requests the listed permissions on them.
func (s *Setting) Capabilities(caps ...string) *Setting {
	f := s.field()
	f.Capabilities = caps
	f.Permissions = []string{"r", "x"}
	return s
}

// Default sets the field's initial value.
func (s *Setting) Default(value string) *Setting {
	s.field().DefaultValue = value
	return s
}

// Option appends a selectable value to an ENUM setting.
func (s *Setting) Option(id, name string) *Setting {
	f := s.field()
	f.Options = append(f.Options, lifecycle.SettingOption{ID: id, Name: name})
	return s
}

// ClearOptions drops the setting's declared options. Render hooks call
// this when the option list is fully dynamic.
func (s *Setting) ClearOptions() *Setting {
	s.field().Options = nil
	return s
}
