package domain

// GroupAssignment is one phase-1 batch result: a set of articles that the
// classifier placed under the same category. The store resolves it to an
// existing group row matched by (main topic, sub topic, label) or creates one.
type GroupAssignment struct {
	MainTopic  string
	SubTopic   string
	GroupLabel string
	Articles   []string
}

// SubgroupProposal is one phase-2 cluster proposed by the classifier for a
// category. Proposals with a label already present in the category are merged
// into the existing subgroup instead of creating a duplicate.
type SubgroupProposal struct {
	Label    string   `json:"group_label"`
	Summary  string   `json:"summary"`
	Articles []string `json:"articles"`
}
