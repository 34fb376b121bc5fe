package domain

import "time"

// Project deployment states written by the pipeline.
const (
	ProjectDeploying = "deploying"
	ProjectDeployed  = "deployed"
	ProjectFailed    = "failed"
)

// Project is the customer website a deployment publishes.
type Project struct {
	ID               string     `json:"id"`
	ProjectName      string     `json:"project_name"`
	Subdomain        *string    `json:"subdomain,omitempty"`
	DeploymentDomain string     `json:"deployment_domain"`
	NetlifySiteID    *string    `json:"netlify_site_id,omitempty"`
	NetlifySiteName  *string    `json:"netlify_site_name,omitempty"`
	DeploymentStatus string     `json:"deployment_status"`
	DeploymentURL    *string    `json:"deployment_url,omitempty"`
	LastDeployedAt   *time.Time `json:"last_deployed_at,omitempty"`
}

// HasSite reports whether a hosting site was recorded for the project.
func (p Project) HasSite() bool {
	return p.NetlifySiteID != nil && *p.NetlifySiteID != ""
}

// ProjectHostingUpdate captures hosting fields to write on a project. Nil
// fields are left untouched; ClearSite nulls the recorded site.
type ProjectHostingUpdate struct {
	ProjectID        string
	NetlifySiteID    *string
	NetlifySiteName  *string
	DeploymentStatus *string
	DeploymentURL    *string
	LastDeployedAt   *time.Time
	ClearSite        bool
}
