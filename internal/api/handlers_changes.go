package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"evalgo.org/serverhub/internal/dataset"
)

// listChanges handles GET /api/v1/changes
func (s *Server) listChanges(c echo.Context) error {
	// Parse pagination parameters
	limit, offset := parsePagination(c)

	commits, total, err := s.store.ListCommits(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}

	views := make([]*ChangeCommitView, 0, len(commits))
	for _, commit := range commits {
		views = append(views, commitView(commit))
	}

	return c.JSON(http.StatusOK, ChangesResponse{
		Count:   len(views),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Commits: views,
	})
}

// getChange handles GET /api/v1/changes/:id
func (s *Server) getChange(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return BadRequestError("ValueError", "commit id must be numeric")
	}

	commit, err := s.store.GetCommit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if commit == nil {
		return NotFoundError("commit", c.Param("id"))
	}

	return c.JSON(http.StatusOK, commitView(commit))
}

// restoreDeleted handles POST /api/v1/changes/:id/restore
func (s *Server) restoreDeleted(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return BadRequestError("ValueError", "commit id must be numeric")
	}

	var req RestoreRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("ValueError", "invalid request body: "+err.Error())
	}
	if req.Hostname == "" {
		return BadRequestError("ValueError", "hostname is required")
	}

	app, user := attribution(c)
	ctx := c.Request().Context()
	objectID, err := s.engine.RestoreDeleted(ctx, id, req.Hostname, app, user)
	if err != nil {
		return err
	}

	records, err := s.engine.Query(ctx, dataset.QueryRequest{
		Filters: map[string]interface{}{"object_id": float64(objectID)},
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return InternalError("restored object vanished")
	}

	return c.JSON(http.StatusCreated, CreateResponse{
		Status: "success",
		Result: records[0],
	})
}
