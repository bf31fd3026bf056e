package cli

// Options carries the global flags plus the flags of the command being run.
// Commands ignore the fields that do not apply to them.
type Options struct {
	RepoPath   string
	ConfigPath string
	Verbose    bool

	Check     bool
	ApplyAll  string
	Continue  bool
	Message   string
	AssumeYes bool

	RefA      string
	RefB      string
	Source    string
	Dataset   string
	FeatureID string

	Branch   string
	Remote   string
	Datasets []string
	Abort    bool
	NoFF     bool
	FFOnly   bool
	Force    bool
}
