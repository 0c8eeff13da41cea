package kcidb

// Schema version carried by every revision this package produces.
const (
	SchemaMajor = 4
	SchemaMinor = 0
)

// DefaultSubmitter is the misc.submitted_by value when none is configured.
const DefaultSubmitter = "kernelci-pipeline"

// Revision is the KCIDB I/O document submitted for one checkout.
type Revision struct {
	Builds    []map[string]any `json:"builds"`
	Checkouts []Checkout       `json:"checkouts"`
	Tests     []map[string]any `json:"tests"`
	Version   Version          `json:"version"`
}

// Checkout describes one source revision checked out by the CI system.
type Checkout struct {
	ID                  string `json:"id"`
	Origin              string `json:"origin"`
	TreeName            string `json:"tree_name"`
	GitRepositoryURL    string `json:"git_repository_url"`
	GitCommitHash       string `json:"git_commit_hash"`
	GitRepositoryBranch string `json:"git_repository_branch"`
	StartTime           string `json:"start_time"`
	PatchsetHash        string `json:"patchset_hash"`
	Misc                Misc   `json:"misc"`
}

// Misc holds free-form checkout metadata.
type Misc struct {
	SubmittedBy string `json:"submitted_by"`
}

// Version is the schema version of a Revision.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// CheckoutID returns the id of the first checkout, or "" if there is none.
func (r Revision) CheckoutID() string {
	if len(r.Checkouts) == 0 {
		return ""
	}
	return r.Checkouts[0].ID
}
