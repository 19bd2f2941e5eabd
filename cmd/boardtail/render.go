package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/boardclient"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

// noMatch is an id no column or user has.
var noMatch = uuid.New() //nolint:gochecknoglobals // sentinel

type statusLine struct {
	connected bool
	transport string
	lastEvent string
	err       string
}

type view struct {
	opts options

	header  lipgloss.Style
	column  lipgloss.Style
	title   lipgloss.Style
	card    lipgloss.Style
	meta    lipgloss.Style
	offline lipgloss.Style
	online  lipgloss.Style
}

func newView(opts options) *view {
	return &view{
		opts:    opts,
		header:  lipgloss.NewStyle().Bold(true),
		column:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(opts.width),
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		card:    lipgloss.NewStyle().Width(opts.width),
		meta:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		offline: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		online:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// filter resolves the name-based flags against the current board.
func (v *view) filter(cols []domain.Column, cards []domain.Card) boardclient.Filter {
	f := boardclient.Filter{Query: v.opts.query}

	byName := make(map[string]uuid.UUID, len(cols))
	for _, c := range cols {
		byName[strings.ToLower(c.Name)] = c.ID
	}
	if v.opts.column != "" {
		// An unknown name matches no column and so hides every card.
		f.ColumnID = byName[strings.ToLower(v.opts.column)]
		if f.ColumnID == uuid.Nil {
			f.ColumnID = noMatch
		}
	}
	if len(v.opts.hidden) > 0 {
		f.Hidden = make(map[uuid.UUID]bool)
		for _, name := range v.opts.hidden {
			if id, ok := byName[strings.ToLower(name)]; ok {
				f.Hidden[id] = true
			}
		}
	}
	if len(v.opts.creators) > 0 {
		want := make(map[string]bool, len(v.opts.creators))
		for _, name := range v.opts.creators {
			want[strings.ToLower(name)] = true
		}
		f.Creators = make(map[uuid.UUID]bool)
		for _, c := range cards {
			if want[strings.ToLower(c.Creator.Name)] {
				f.Creators[c.CreatedBy] = true
			}
		}
		if len(f.Creators) == 0 {
			f.Creators[noMatch] = true
		}
	}
	return f
}

func (v *view) render(store *boardclient.Store, st statusLine) string {
	cols := store.Columns()
	all := store.Cards()
	f := v.filter(cols, all)
	visible := f.Visible(all)

	byColumn := make(map[uuid.UUID][]domain.Card)
	for _, c := range visible {
		byColumn[c.ColumnID] = append(byColumn[c.ColumnID], c)
	}

	var boxes []string
	for _, col := range cols {
		if f.Hidden[col.ID] || (f.ColumnID != uuid.Nil && f.ColumnID != col.ID) {
			continue
		}
		boxes = append(boxes, v.renderColumn(col, byColumn[col.ID]))
	}

	var b strings.Builder
	b.WriteString(v.renderStatus(st, store.Online()))
	b.WriteString("\n")
	if f.Active() {
		b.WriteString(v.meta.Render(fmt.Sprintf("showing %d of %d cards", len(visible), len(all))))
		b.WriteString("\n")
	}
	if len(boxes) == 0 {
		b.WriteString(v.meta.Render("no columns"))
		return b.String()
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	return b.String()
}

func (v *view) renderColumn(col domain.Column, cards []domain.Card) string {
	lines := []string{v.title.Render(fmt.Sprintf("%s (%d)", col.Name, len(cards)))}
	for _, c := range cards {
		lines = append(lines, v.card.Render("• "+c.Title))
		if meta := cardMeta(c); meta != "" {
			lines = append(lines, v.meta.Render("  "+meta))
		}
	}
	return v.column.Render(strings.Join(lines, "\n"))
}

// cardMeta summarizes a card's votes, comments and active polls.
func cardMeta(c domain.Card) string {
	var parts []string
	if n := len(c.Votes); n > 0 {
		parts = append(parts, fmt.Sprintf("▲%d", n))
	}
	if n := len(c.Comments); n > 0 {
		parts = append(parts, fmt.Sprintf("✎%d", n))
	}
	for _, p := range c.Polls {
		if p.IsActive {
			parts = append(parts, fmt.Sprintf("?%d", p.TotalVotes))
		}
	}
	if c.Creator.Name != "" {
		parts = append(parts, c.Creator.Name)
	}
	return strings.Join(parts, " ")
}

func (v *view) renderStatus(st statusLine, online []event.Presence) string {
	var conn string
	switch {
	case st.connected:
		conn = v.online.Render("● " + st.transport)
	case st.err != "":
		conn = v.offline.Render("○ reconnecting: " + st.err)
	default:
		conn = v.offline.Render("○ offline")
	}

	parts := []string{v.header.Render("ideaboard"), conn}
	if len(online) > 0 {
		names := make([]string, 0, len(online))
		seen := make(map[uuid.UUID]bool)
		for _, p := range online {
			if !seen[p.UserID] {
				seen[p.UserID] = true
				names = append(names, p.Name)
			}
		}
		parts = append(parts, v.meta.Render("online: "+strings.Join(names, ", ")))
	}
	if st.lastEvent != "" {
		parts = append(parts, v.meta.Render("last: "+st.lastEvent))
	}
	return strings.Join(parts, "  ")
}
