package cmd

import (
	"fmt"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/catalog"
	"github.com/AlfredBerg/sps-crawler/internal/crawl"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/charmbracelet/huh"
)

func optionLabel(o crawl.Option) string {
	return fmt.Sprintf("%2d. %s", o.Number, o.Title)
}

func askOption(c session.Context) (int, error) {
	opts := make([]huh.Option[int], 0, len(crawl.Options))
	for _, o := range crawl.Options {
		opts = append(opts, huh.NewOption(optionLabel(o), o.Number))
	}
	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title(fmt.Sprintf("%s / %s", c.Subsidiary, c.Table.Name)).
				Description(fmt.Sprintf("debug: %t", c.Debug)).
				Options(opts...).
				Height(12).
				Value(&choice),
		),
	).WithTheme(huh.ThemeDracula())
	if err := form.Run(); err != nil {
		return 0, err
	}
	return choice, nil
}

func askTable() (string, error) {
	opts := make([]huh.Option[string], 0)
	for _, n := range catalog.Names() {
		opts = append(opts, huh.NewOption(n, n))
	}
	var table string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("A Table config name is required").
				Options(opts...).
				Value(&table),
		),
	).WithTheme(huh.ThemeDracula()).Run()
	return table, err
}

func askNextKey() (string, error) {
	var key string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Next file download key (Enter to quit)").
				Value(&key),
		),
	).WithTheme(huh.ThemeDracula()).Run()
	return strings.TrimSpace(key), err
}
