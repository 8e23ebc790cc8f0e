package api

import (
	"encoding/json"

	"evalgo.org/serverhub/internal/dataset"
	"evalgo.org/serverhub/models"
)

// HeaderApplication carries the calling application's name for change
// attribution.
const HeaderApplication = "X-Application"

// QueryRequest is the body of POST /api/v1/dataset/query.
type QueryRequest struct {
	Filters  map[string]interface{} `json:"filters"`
	Restrict []string               `json:"restrict,omitempty"`
	OrderBy  string                 `json:"order_by,omitempty"`
}

// QueryResponse is the result envelope of a dataset query.
type QueryResponse struct {
	Status string           `json:"status"`
	Result []dataset.Record `json:"result"`
}

// CommitRequest is the body of POST /api/v1/dataset/commit. Changes is
// keyed by object id; each entry maps attribute names to their old/new
// pair, new null meaning removal.
type CommitRequest struct {
	Deleted        []string                                      `json:"deleted,omitempty"`
	Changes        map[string]map[string]dataset.AttributeChange `json:"changes,omitempty"`
	SkipValidation bool                                          `json:"skip_validation,omitempty"`
	ForceChanges   bool                                          `json:"force_changes,omitempty"`
}

// CommitResponse reports what a commit touched.
type CommitResponse struct {
	Status  string   `json:"status"`
	Deleted []string `json:"deleted"`
	Changed []int64  `json:"changed"`
}

// CreateRequest is the body of POST /api/v1/dataset/create.
type CreateRequest struct {
	Attributes      map[string]interface{} `json:"attributes"`
	SkipValidation  bool                   `json:"skip_validation,omitempty"`
	FillDefaults    bool                   `json:"fill_defaults,omitempty"`
	FillDefaultsAll bool                   `json:"fill_defaults_all,omitempty"`
}

// CreateResponse echoes the created object back in its query projection.
type CreateResponse struct {
	Status string         `json:"status"`
	Result dataset.Record `json:"result"`
}

// ChangeRecordView is one audit record in API shape.
type ChangeRecordView struct {
	Kind     string          `json:"kind"`
	Hostname string          `json:"hostname"`
	Payload  json.RawMessage `json:"payload"`
}

// ChangeCommitView is one audit commit in API shape.
type ChangeCommitView struct {
	ID        int64              `json:"id"`
	App       string             `json:"app,omitempty"`
	User      string             `json:"user,omitempty"`
	CreatedAt string             `json:"created_at"`
	Records   []ChangeRecordView `json:"records"`
}

// ChangesResponse is a paginated page of the change journal.
type ChangesResponse struct {
	Count   int                 `json:"count"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	Commits []*ChangeCommitView `json:"commits"`
}

// RestoreRequest names the deleted object to bring back.
type RestoreRequest struct {
	Hostname string `json:"hostname"`
}

// ServertypeView is one servertype with its constraint rows in API shape.
type ServertypeView struct {
	Name       string               `json:"name"`
	Attributes []ServertypeAttrView `json:"attributes"`
}

// ServertypeAttrView is one constraint row in API shape.
type ServertypeAttrView struct {
	Attribute string `json:"attribute"`
	Required  bool   `json:"required"`
	Default   string `json:"default,omitempty"`
	Regexp    string `json:"regexp,omitempty"`
}

func commitView(commit *models.ChangeCommit) *ChangeCommitView {
	view := &ChangeCommitView{
		ID:        commit.ID,
		App:       commit.App,
		User:      commit.User,
		CreatedAt: commit.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, rec := range commit.Records {
		view.Records = append(view.Records, ChangeRecordView{
			Kind:     string(rec.Kind),
			Hostname: rec.Hostname,
			Payload:  rec.Payload,
		})
	}
	return view
}
