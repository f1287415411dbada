// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Another0Noob/boxd-recommend/internal/fetch"
)

// Film is one title served by FakeSite.
type Film struct {
	Slug   string
	Name   string
	Genres []string
	// Rating is the site average shown on the ratings summary ("" omits it).
	Rating string
	Likes  string
}

// FakeSite serves canned catalog site pages by URL. Unknown URLs are 404s.
type FakeSite struct {
	Base string

	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func NewFakeSite(base string) *FakeSite {
	return &FakeSite{Base: base, pages: map[string]string{}, hits: map[string]int{}}
}

func (s *FakeSite) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[url]++
	body, ok := s.pages[url]
	if !ok {
		return nil, &fetch.Error{Op: "get", URL: url, Status: 404, Err: fetch.ErrNotFound}
	}
	return []byte(body), nil
}

// Hits reports how often url was requested.
func (s *FakeSite) Hits(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[url]
}

// SetPage serves body at url.
func (s *FakeSite) SetPage(url, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = body
}

// AddUser serves a single listing page of films for user, plus every film's
// detail, stats and ratings pages.
func (s *FakeSite) AddUser(user string, films ...Film) {
	slugs := make([]string, 0, len(films))
	for _, f := range films {
		slugs = append(slugs, f.Slug)
		s.AddFilm(f)
	}
	s.SetPage(fmt.Sprintf("%s/%s/films/", s.Base, user), Listing(slugs...))
}

// AddPrivateUser serves the private-profile marker for user.
func (s *FakeSite) AddPrivateUser(user string) {
	s.SetPage(fmt.Sprintf("%s/%s/films/", s.Base, user),
		`<html><body><div class="private-profile">This profile is private</div></body></html>`)
}

func (s *FakeSite) AddFilm(f Film) {
	s.SetPage(fmt.Sprintf("%s/film/%s/", s.Base, f.Slug), FilmPage(f.Name, f.Genres...))
	likes := f.Likes
	if likes == "" {
		likes = "1K"
	}
	s.SetPage(fmt.Sprintf("%s/csi/film/%s/stats/", s.Base, f.Slug), StatsPage("10K", likes))
	if f.Rating != "" {
		s.SetPage(fmt.Sprintf("%s/csi/film/%s/ratings-summary/", s.Base, f.Slug), RatingPage(f.Rating))
	}
}

func Listing(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="poster-grid"><ul>`)
	for i, s := range slugs {
		fmt.Fprintf(&b, `<li><div class="react-component" data-film-id="%d" data-item-slug="%s"></div></li>`, i+1, s)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

func FilmPage(name string, genres ...string) string {
	var g strings.Builder
	for _, genre := range genres {
		g.WriteString("<a>" + genre + "</a>")
	}
	return `<html><body><div data-film-id="77">` +
		`<h1 class="primaryname"><span class="name">` + name + `</span></h1>` +
		`<div id="tab-genres">` + g.String() + `</div>` +
		`<p class="text-footer">120&nbsp;mins</p>` +
		`</div></body></html>`
}

func StatsPage(views, likes string) string {
	return `<div class="production-statistic-list">` +
		`<div class="production-statistic -watches"><a><span>` + views + `</span></a></div>` +
		`<div class="production-statistic -likes"><a><span>` + likes + `</span></a></div>` +
		`</div>`
}

func RatingPage(avg string) string {
	return `<span class="average-rating"><a class="display-rating">` + avg + `</a></span>`
}
