package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"
)

const themeConfigFileName = "themes.json"

type ThemeConfig struct {
	Default string           `json:"default"`
	Themes  map[string]Theme `json:"themes"`
}

type Theme struct {
	Name string `json:"-"`

	TitleFg                string `json:"title_fg"`
	HeaderBg               string `json:"header_bg"`
	HeaderFg               string `json:"header_fg"`
	FooterBg               string `json:"footer_bg"`
	FooterFg               string `json:"footer_fg"`
	FieldNameFg            string `json:"field_name_fg"`
	OursHighlightBg        string `json:"ours_highlight_bg"`
	OursHighlightFg        string `json:"ours_highlight_fg"`
	TheirsHighlightBg      string `json:"theirs_highlight_bg"`
	TheirsHighlightFg      string `json:"theirs_highlight_fg"`
	AncestorHighlightBg    string `json:"ancestor_highlight_bg"`
	AncestorHighlightFg    string `json:"ancestor_highlight_fg"`
	ConflictedFg           string `json:"conflicted_fg"`
	SelectedRowBg          string `json:"selected_row_bg"`
	StatusResolvedFg       string `json:"status_resolved_fg"`
	StatusUnresolvedFg     string `json:"status_unresolved_fg"`
	ResultResolvedBorder   string `json:"result_resolved_border"`
	ResultUnresolvedBorder string `json:"result_unresolved_border"`
	ToastBg                string `json:"toast_bg"`
	ToastFg                string `json:"toast_fg"`
	SelectorResolvedFg     string `json:"selector_resolved_fg"`
	SelectorUnresolvedFg   string `json:"selector_unresolved_fg"`
	DimForegroundMuted     string `json:"dim_foreground_muted"`
}

var (
	titleStyle                lipgloss.Style
	headerStyle               lipgloss.Style
	footerStyle               lipgloss.Style
	fieldNameStyle            lipgloss.Style
	columnHeaderStyle         lipgloss.Style
	oursHighlightStyle        lipgloss.Style
	theirsHighlightStyle      lipgloss.Style
	ancestorHighlightStyle    lipgloss.Style
	conflictedStyle           lipgloss.Style
	statusResolvedStyle       lipgloss.Style
	statusUnresolvedStyle     lipgloss.Style
	resultResolvedPaneStyle   lipgloss.Style
	resultUnresolvedPaneStyle lipgloss.Style
	toastStyle                lipgloss.Style
	toastLineStyle            lipgloss.Style

	selectedRowBackground lipgloss.Color
	dimForegroundMuted    lipgloss.Color
)

var (
	themeOnce sync.Once
	themeErr  error
	themeDir  string
	themeName string
)

func init() {
	applyTheme(defaultTheme())
}

// Configure sets where themes.json is looked up and which theme to use.
// An empty name uses the file's "default" entry. It must be called before
// the first view opens.
func Configure(dir, name string) {
	themeDir = dir
	themeName = strings.TrimSpace(name)
}

func ensureThemeLoaded() error {
	themeOnce.Do(func() {
		theme, err := loadThemeFromConfig()
		if err != nil {
			themeErr = err
			return
		}
		applyTheme(theme)
	})
	return themeErr
}

func loadThemeFromConfig() (Theme, error) {
	fallback := defaultTheme()
	if themeDir == "" {
		return fallback, nil
	}
	configPath := filepath.Join(themeDir, themeConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, nil
		}
		return Theme{}, fmt.Errorf("read theme config: %w", err)
	}

	var cfg ThemeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Theme{}, fmt.Errorf("parse theme config: %w", err)
	}

	name := themeName
	if name == "" {
		name = strings.TrimSpace(cfg.Default)
	}
	if name == "" || name == "default" {
		if override, ok := cfg.Themes["default"]; ok {
			override.Name = "default"
			return mergeTheme(fallback, override), nil
		}
		return fallback, nil
	}

	theme, ok := cfg.Themes[name]
	if !ok {
		return Theme{}, fmt.Errorf("theme %q not found in %s", name, configPath)
	}
	theme.Name = name
	return mergeTheme(fallback, theme), nil
}

func defaultTheme() Theme {
	return Theme{
		Name:                   "default",
		TitleFg:                "170",
		HeaderBg:               "62",
		HeaderFg:               "230",
		FooterBg:               "236",
		FooterFg:               "243",
		FieldNameFg:            "241",
		OursHighlightBg:        "24",
		OursHighlightFg:        "230",
		TheirsHighlightBg:      "52",
		TheirsHighlightFg:      "230",
		AncestorHighlightBg:    "237",
		AncestorHighlightFg:    "250",
		ConflictedFg:           "209",
		SelectedRowBg:          "236",
		StatusResolvedFg:       "42",
		StatusUnresolvedFg:     "196",
		ResultResolvedBorder:   "42",
		ResultUnresolvedBorder: "196",
		ToastBg:                "22",
		ToastFg:                "230",
		SelectorResolvedFg:     "42",
		SelectorUnresolvedFg:   "196",
		DimForegroundMuted:     "244",
	}
}

func mergeTheme(base Theme, override Theme) Theme {
	return Theme{
		Name:                   override.Name,
		TitleFg:                pickColor(base.TitleFg, override.TitleFg),
		HeaderBg:               pickColor(base.HeaderBg, override.HeaderBg),
		HeaderFg:               pickColor(base.HeaderFg, override.HeaderFg),
		FooterBg:               pickColor(base.FooterBg, override.FooterBg),
		FooterFg:               pickColor(base.FooterFg, override.FooterFg),
		FieldNameFg:            pickColor(base.FieldNameFg, override.FieldNameFg),
		OursHighlightBg:        pickColor(base.OursHighlightBg, override.OursHighlightBg),
		OursHighlightFg:        pickColor(base.OursHighlightFg, override.OursHighlightFg),
		TheirsHighlightBg:      pickColor(base.TheirsHighlightBg, override.TheirsHighlightBg),
		TheirsHighlightFg:      pickColor(base.TheirsHighlightFg, override.TheirsHighlightFg),
		AncestorHighlightBg:    pickColor(base.AncestorHighlightBg, override.AncestorHighlightBg),
		AncestorHighlightFg:    pickColor(base.AncestorHighlightFg, override.AncestorHighlightFg),
		ConflictedFg:           pickColor(base.ConflictedFg, override.ConflictedFg),
		SelectedRowBg:          pickColor(base.SelectedRowBg, override.SelectedRowBg),
		StatusResolvedFg:       pickColor(base.StatusResolvedFg, override.StatusResolvedFg),
		StatusUnresolvedFg:     pickColor(base.StatusUnresolvedFg, override.StatusUnresolvedFg),
		ResultResolvedBorder:   pickColor(base.ResultResolvedBorder, override.ResultResolvedBorder),
		ResultUnresolvedBorder: pickColor(base.ResultUnresolvedBorder, override.ResultUnresolvedBorder),
		ToastBg:                pickColor(base.ToastBg, override.ToastBg),
		ToastFg:                pickColor(base.ToastFg, override.ToastFg),
		SelectorResolvedFg:     pickColor(base.SelectorResolvedFg, override.SelectorResolvedFg),
		SelectorUnresolvedFg:   pickColor(base.SelectorUnresolvedFg, override.SelectorUnresolvedFg),
		DimForegroundMuted:     pickColor(base.DimForegroundMuted, override.DimForegroundMuted),
	}
}

func pickColor(base string, override string) string {
	if override != "" {
		return override
	}
	return base
}

func applyTheme(theme Theme) {
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(theme.TitleFg)).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Background(lipgloss.Color(theme.HeaderBg)).
		Foreground(lipgloss.Color(theme.HeaderFg)).
		Padding(0, 2)

	footerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color(theme.FooterBg)).
		Foreground(lipgloss.Color(theme.FooterFg)).
		Padding(0, 2)

	fieldNameStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.FieldNameFg))

	columnHeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(theme.TitleFg))

	oursHighlightStyle = lipgloss.NewStyle().
		Background(lipgloss.Color(theme.OursHighlightBg)).
		Foreground(lipgloss.Color(theme.OursHighlightFg))

	theirsHighlightStyle = lipgloss.NewStyle().
		Background(lipgloss.Color(theme.TheirsHighlightBg)).
		Foreground(lipgloss.Color(theme.TheirsHighlightFg))

	ancestorHighlightStyle = lipgloss.NewStyle().
		Background(lipgloss.Color(theme.AncestorHighlightBg)).
		Foreground(lipgloss.Color(theme.AncestorHighlightFg))

	conflictedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.ConflictedFg)).
		Bold(true)

	statusResolvedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.StatusResolvedFg)).
		Bold(true)

	statusUnresolvedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.StatusUnresolvedFg)).
		Bold(true)

	resultResolvedPaneStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.ResultResolvedBorder)).
		Padding(0, 1)

	resultUnresolvedPaneStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(theme.ResultUnresolvedBorder)).
		Padding(0, 1)

	toastStyle = lipgloss.NewStyle().
		Background(lipgloss.Color(theme.ToastBg)).
		Foreground(lipgloss.Color(theme.ToastFg)).
		Padding(0, 1)

	toastLineStyle = lipgloss.NewStyle().
		Align(lipgloss.Right).
		Padding(0, 2)

	resolvedLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.SelectorResolvedFg))
	unresolvedLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.SelectorUnresolvedFg))

	selectedRowBackground = lipgloss.Color(theme.SelectedRowBg)
	dimForegroundMuted = lipgloss.Color(theme.DimForegroundMuted)
}
