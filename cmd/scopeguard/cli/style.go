// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles colors verdicts in human-readable output. Writers that are not
// terminals get plain text.
type Styles struct {
	Allowed lipgloss.Style
	Denied  lipgloss.Style
	Faint   lipgloss.Style
}

// NewStyles detects the color profile of w.
func NewStyles(w io.Writer) Styles {
	return newStyles(lipgloss.NewRenderer(w))
}

// NewStylesWithProfile forces a color profile, for output that is
// captured and replayed on a terminal.
func NewStylesWithProfile(w io.Writer, profile termenv.Profile) Styles {
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return newStyles(renderer)
}

func newStyles(renderer *lipgloss.Renderer) Styles {
	return Styles{
		Allowed: renderer.NewStyle().Foreground(lipgloss.Color("114")),
		Denied:  renderer.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Faint:   renderer.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Verdict renders text in the allowed or denied style.
func (s Styles) Verdict(ok bool, text string) string {
	if ok {
		return s.Allowed.Render(text)
	}
	return s.Denied.Render(text)
}
