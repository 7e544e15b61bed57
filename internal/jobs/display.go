package jobs

import (
	"strings"
	"time"
)

// Display is the outward form of a Job described in §6: a flattened view
// with links rewritten to public permalinks and empty fields dropped.
type Display struct {
	JobID            string     `json:"jobID"`
	Username         string     `json:"username"`
	Status           Status     `json:"status"`
	Message          string     `json:"message"`
	Progress         int        `json:"progress"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	DataExpiration   *time.Time `json:"dataExpiration,omitempty"`
	Links            []Link     `json:"links,omitempty"`
	Labels           []string   `json:"labels,omitempty"`
	Request          string     `json:"request,omitempty"`
	NumInputGranules int        `json:"numInputGranules,omitempty"`
}

// ToDisplay builds the outward form of j. When urlRoot is non-empty, links
// are rewritten to public permalinks unless the link's rel is "s3-access"
// or the Job has a destination_url (§6).
func (j *Job) ToDisplay(links []Link, urlRoot string) *Display {
	d := &Display{
		JobID:            j.JobID,
		Username:         j.Username,
		Status:           j.Status,
		Message:          j.Message(),
		Progress:         j.Progress,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		DataExpiration:   j.GetDataExpiration(),
		Labels:           j.LabelList(),
		Request:          j.Request,
		NumInputGranules: j.NumInputGranules,
	}

	rewrite := urlRoot != "" && strings.TrimSpace(j.DestinationURL) == ""
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if rewrite && l.Rel != s3AccessRel {
			l.Href = strings.TrimRight(urlRoot, "/") + "/jobs/" + j.JobID + "/links/" + l.ID
		}
		out = append(out, l)
	}
	d.Links = out
	return d
}
