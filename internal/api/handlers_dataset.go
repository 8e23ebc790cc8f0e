package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"evalgo.org/serverhub/internal/dataset"
)

// attribution reads the caller's identity for change records from the
// X-Application header. Empty is allowed; the journal stores it as-is.
func attribution(c echo.Context) (app, user string) {
	return c.Request().Header.Get(HeaderApplication), c.Request().Header.Get("X-User")
}

// queryDataset handles POST /api/v1/dataset/query
func (s *Server) queryDataset(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("ValueError", "invalid request body: "+err.Error())
	}

	records, err := s.engine.Query(c.Request().Context(), dataset.QueryRequest{
		Filters:  req.Filters,
		Restrict: req.Restrict,
		OrderBy:  req.OrderBy,
	})
	if err != nil {
		return err
	}
	if records == nil {
		records = []dataset.Record{}
	}

	s.debugLog("DEBUG: query matched %d objects", len(records))

	return c.JSON(http.StatusOK, QueryResponse{
		Status: "success",
		Result: records,
	})
}

// commitDataset handles POST /api/v1/dataset/commit
func (s *Server) commitDataset(c echo.Context) error {
	var req CommitRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("ValueError", "invalid request body: "+err.Error())
	}

	changes := make(map[int64]map[string]dataset.AttributeChange, len(req.Changes))
	changed := make([]int64, 0, len(req.Changes))
	for key, attrChanges := range req.Changes {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return BadRequestError("ValueError", "object ids must be numeric, got "+strconv.Quote(key))
		}
		changes[id] = attrChanges
		changed = append(changed, id)
	}

	app, user := attribution(c)
	err := s.engine.CommitChanges(c.Request().Context(), dataset.Batch{
		Deleted: req.Deleted,
		Changes: changes,
	}, dataset.CommitOptions{
		SkipValidation: req.SkipValidation,
		ForceChanges:   req.ForceChanges,
		App:            app,
		User:           user,
	})
	if err != nil {
		return err
	}

	deleted := req.Deleted
	if deleted == nil {
		deleted = []string{}
	}
	return c.JSON(http.StatusOK, CommitResponse{
		Status:  "success",
		Deleted: deleted,
		Changed: changed,
	})
}

// createObject handles POST /api/v1/dataset/create
func (s *Server) createObject(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("ValueError", "invalid request body: "+err.Error())
	}
	if len(req.Attributes) == 0 {
		return BadRequestError("ValueError", "attributes are required")
	}

	app, user := attribution(c)
	ctx := c.Request().Context()
	id, err := s.engine.CreateServer(ctx, req.Attributes, dataset.CreateOptions{
		SkipValidation:  req.SkipValidation,
		FillDefaults:    req.FillDefaults,
		FillDefaultsAll: req.FillDefaultsAll,
		App:             app,
		User:            user,
	})
	if err != nil {
		return err
	}

	// Echo the stored object back in its query projection so the caller
	// sees filled defaults and the assigned object id.
	records, err := s.engine.Query(ctx, dataset.QueryRequest{
		Filters: map[string]interface{}{"object_id": float64(id)},
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return InternalError("created object vanished")
	}

	return c.JSON(http.StatusCreated, CreateResponse{
		Status: "success",
		Result: records[0],
	})
}
