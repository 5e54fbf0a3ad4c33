// Zaparoo Pulse
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Pulse.
//
// Zaparoo Pulse is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Pulse is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Pulse.  If not, see <http://www.gnu.org/licenses/>.

package tui

import (
	"github.com/ZaparooProject/zaparoo-pulse/pkg/helpers/syncutil"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Theme defines all colors used by the dashboard. The *Name fields are
// tview color tags.
type Theme struct {
	Name                     string
	DisplayName              string
	AccentColorName          string
	OKColorName              string
	AlarmColorName           string
	IdleColorName            string
	LabelColorName           string
	PrimitiveBackgroundColor tcell.Color
	ContrastBackgroundColor  tcell.Color
	BorderColor              tcell.Color
	PrimaryTextColor         tcell.Color
	SecondaryTextColor       tcell.Color
	InverseTextColor         tcell.Color
}

var ThemeDefault = Theme{
	Name:        "default",
	DisplayName: "Default (Dark Blue)",

	PrimitiveBackgroundColor: tcell.ColorDarkBlue,
	ContrastBackgroundColor:  tcell.ColorBlue,
	BorderColor:              tcell.ColorLightYellow,
	PrimaryTextColor:         tcell.ColorWhite,
	SecondaryTextColor:       tcell.ColorGray,
	InverseTextColor:         tcell.ColorDarkBlue,

	AccentColorName: "yellow",
	OKColorName:     "green",
	AlarmColorName:  "red",
	IdleColorName:   "gray",
	LabelColorName:  "gray",
}

// ThemeHighContrast uses a black background for accessibility.
var ThemeHighContrast = Theme{
	Name:        "high_contrast",
	DisplayName: "High Contrast",

	PrimitiveBackgroundColor: tcell.NewHexColor(0x000000),
	ContrastBackgroundColor:  tcell.NewHexColor(0x000000),
	BorderColor:              tcell.ColorYellow,
	PrimaryTextColor:         tcell.ColorWhite,
	SecondaryTextColor:       tcell.ColorWhite,
	InverseTextColor:         tcell.NewHexColor(0x000000),

	AccentColorName: "yellow",
	OKColorName:     "lime",
	AlarmColorName:  "red",
	IdleColorName:   "white",
	LabelColorName:  "white",
}

var ThemeMonogreen = Theme{
	Name:        "monogreen",
	DisplayName: "Mono Green (Retro)",

	PrimitiveBackgroundColor: tcell.ColorBlack,
	ContrastBackgroundColor:  tcell.NewHexColor(0x0A1A0A),
	BorderColor:              tcell.ColorGreen,
	PrimaryTextColor:         tcell.ColorGreen,
	SecondaryTextColor:       tcell.ColorDarkGreen,
	InverseTextColor:         tcell.ColorBlack,

	AccentColorName: "lime",
	OKColorName:     "green",
	AlarmColorName:  "red",
	IdleColorName:   "darkgreen",
	LabelColorName:  "darkgreen",
}

// AvailableThemes maps theme names to theme definitions.
var AvailableThemes = map[string]*Theme{
	"default":       &ThemeDefault,
	"high_contrast": &ThemeHighContrast,
	"monogreen":     &ThemeMonogreen,
}

// ThemeNames returns the list of available theme names in display order.
var ThemeNames = []string{
	"default",
	"high_contrast",
	"monogreen",
}

var (
	currentTheme = &ThemeDefault
	themeMu      syncutil.RWMutex
)

func CurrentTheme() *Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

// SetCurrentTheme sets the current theme by name.
// Returns false if the theme name is not found.
func SetCurrentTheme(name string) bool {
	theme, ok := AvailableThemes[name]
	if !ok {
		return false
	}
	themeMu.Lock()
	currentTheme = theme
	themeMu.Unlock()
	ApplyTheme(theme)
	return true
}

// ApplyTheme applies the given theme to tview's global styles.
func ApplyTheme(theme *Theme) {
	tview.Styles.PrimitiveBackgroundColor = theme.PrimitiveBackgroundColor
	tview.Styles.ContrastBackgroundColor = theme.ContrastBackgroundColor
	tview.Styles.BorderColor = theme.BorderColor
	tview.Styles.PrimaryTextColor = theme.PrimaryTextColor
	tview.Styles.SecondaryTextColor = theme.SecondaryTextColor
	tview.Styles.InverseTextColor = theme.InverseTextColor
}
