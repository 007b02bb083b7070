package orchestrate

import (
	"fmt"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/links"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"go.uber.org/zap"
)

// Resolver turns a record link into the absolute url of its files tab by
// filling the table's url template.
type Resolver struct {
	Ctx session.Context
	// SecondaryRef maps a record's display text to its cross reference link.
	// Required when the template has {id_2}.
	SecondaryRef map[string]links.Link
	Log          *zap.Logger
}

// FilesURL returns the files tab url for l, or false when an id can not be
// resolved. Such links are logged and skipped.
func (r *Resolver) FilesURL(l links.Link) (string, bool) {
	tmpl := r.Ctx.Table.FilesURLTemplate
	if tmpl == "" {
		r.Log.Error("table has no files url template", zap.String("table", r.Ctx.Table.Name))
		return "", false
	}
	param := r.Ctx.Table.IDParam

	id, err := links.IDFromURL(l.URL, param)
	if err != nil {
		r.Log.Error("error getting id for link", zap.String("link", l.Text), zap.Error(err))
		return "", false
	}
	u := strings.ReplaceAll(tmpl, "{id}", id)

	if strings.Contains(u, "{id_2}") {
		id2, err := r.secondaryID(l, param)
		if err != nil {
			r.Log.Error("error getting secondary link", zap.String("link", l.Text), zap.String("url", u), zap.Error(err))
			return "", false
		}
		u = strings.ReplaceAll(u, "{id_2}", id2)
	}
	return r.Ctx.FullURL(u), true
}

func (r *Resolver) secondaryID(l links.Link, param string) (string, error) {
	ref, ok := r.SecondaryRef[l.Text]
	if !ok {
		return "", fmt.Errorf("no secondary reference for %q", l.Text)
	}
	return links.IDFromURL(ref.URL, param)
}
