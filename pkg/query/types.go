package query

// Roles understood by the heuristic synthesizer.
const (
	RoleHeadOfHousehold = "head_of_household"
	RoleFamilyMember    = "family_member"
)

// DocumentOp describes a read against a document collection. Pipeline takes precedence over
// Filter when both are set.
type DocumentOp struct {
	Collection string           `json:"collection"`
	Pipeline   []map[string]any `json:"pipeline,omitempty"`
	Filter     map[string]any   `json:"filter,omitempty"`
}

// Candidate is a synthesized query. Exactly one of SQL or Mongo is set for a usable candidate;
// Args holds the bound parameters referenced by SQL placeholders.
type Candidate struct {
	SQL   string      `json:"sql,omitempty"`
	Args  []any       `json:"args,omitempty"`
	Mongo *DocumentOp `json:"mongo,omitempty"`
	Notes string      `json:"notes,omitempty"`
}

func (c Candidate) IsEmpty() bool {
	return c.SQL == "" && c.Mongo == nil
}

// Result is the normalized output of executing a candidate.
type Result struct {
	Rows []map[string]any `json:"rows"`
	Meta map[string]any   `json:"meta"`
}

// Caller identifies who is asking. It scopes row filtering and is never used for authorization.
type Caller struct {
	UserID   int64  `json:"userId,omitempty"`
	Role     string `json:"userRole,omitempty"`
	UserName string `json:"userName,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (c Caller) HasID() bool { return c.UserID > 0 }
