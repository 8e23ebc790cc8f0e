package api

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
)

// listServertypes handles GET /api/v1/schema/servertypes
func (s *Server) listServertypes(c echo.Context) error {
	snap, err := s.registry.Snapshot(c.Request().Context())
	if err != nil {
		return err
	}

	servertypes := snap.Servertypes()
	sort.Slice(servertypes, func(i, j int) bool { return servertypes[i].Name < servertypes[j].Name })

	views := make([]ServertypeView, 0, len(servertypes))
	for _, st := range servertypes {
		view := ServertypeView{Name: st.Name}
		for _, sa := range st.Attributes {
			attrView := ServertypeAttrView{
				Attribute: sa.Attribute.Name,
				Required:  sa.Required,
				Default:   sa.Default,
			}
			if sa.Regexp != nil {
				attrView.Regexp = sa.Regexp.String()
			}
			view.Attributes = append(view.Attributes, attrView)
		}
		views = append(views, view)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":          len(views),
		"schema_version": snap.Version,
		"servertypes":    views,
	})
}

// listAttributes handles GET /api/v1/schema/attributes
func (s *Server) listAttributes(c echo.Context) error {
	snap, err := s.registry.Snapshot(c.Request().Context())
	if err != nil {
		return err
	}

	attrs := snap.Attributes()
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })

	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":          len(attrs),
		"schema_version": snap.Version,
		"attributes":     attrs,
	})
}
