package repotools

// Result is the structured output of an executor.
type Result interface {
	IsTruncated() bool
}

// ErrorPayload is what a failed tool call reports back to the model.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ListFilesResult holds root-relative slash paths in walk order.
type ListFilesResult struct {
	Files     []string `json:"files"`
	Count     int      `json:"count"`
	Truncated bool     `json:"truncated"`
}

// ReadFileResult omits Content for binary files.
type ReadFileResult struct {
	Path      string  `json:"path"`
	Content   *string `json:"content,omitempty"`
	Bytes     int     `json:"bytes"`
	Binary    bool    `json:"binary,omitempty"`
	MIME      string  `json:"mime,omitempty"`
	Truncated bool    `json:"truncated"`
}

// GrepMatch is one matching line; Line is 1-based.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepResult reports which engine answered (ripgrep or walk).
type GrepResult struct {
	Matches   []GrepMatch `json:"matches"`
	Count     int         `json:"count"`
	Truncated bool        `json:"truncated"`
	Engine    string      `json:"engine"`
}

// GitStatusResult is the raw porcelain output of git status.
type GitStatusResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// GitDiffResult carries the diff, cut at the output budget.
type GitDiffResult struct {
	Diff      string `json:"diff"`
	Stderr    string `json:"stderr"`
	Code      int    `json:"code"`
	Staged    bool   `json:"staged"`
	Truncated bool   `json:"truncated"`
}

// Commit is one line of git_log_short output.
type Commit struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
}

// GitLogResult lists commits newest first; Requested is the effective limit.
type GitLogResult struct {
	Commits   []Commit `json:"commits"`
	Count     int      `json:"count"`
	Requested int      `json:"requested"`
	Stderr    string   `json:"stderr"`
	Code      int      `json:"code"`
	Truncated bool     `json:"truncated"`
}

// RunCommandResult is the outcome of an allow-listed check. A non-zero
// Code is a failed check, not an error.
type RunCommandResult struct {
	Runner     Runner      `json:"runner"`
	Kind       CommandKind `json:"kind"`
	Argv       []string    `json:"argv"`
	Stdout     string      `json:"stdout"`
	Stderr     string      `json:"stderr"`
	Code       int         `json:"code"`
	DurationMs int64       `json:"duration_ms"`
	Truncated  bool        `json:"truncated"`
}

func (r *ListFilesResult) IsTruncated() bool  { return r.Truncated }
func (r *ReadFileResult) IsTruncated() bool   { return r.Truncated }
func (r *GrepResult) IsTruncated() bool       { return r.Truncated }
func (r *GitStatusResult) IsTruncated() bool  { return false }
func (r *GitDiffResult) IsTruncated() bool    { return r.Truncated }
func (r *GitLogResult) IsTruncated() bool     { return r.Truncated }
func (r *RunCommandResult) IsTruncated() bool { return r.Truncated }
