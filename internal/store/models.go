package store

import "time"

// The four required kernel file types, in display order.
var KernelFileTypes = []string{"summary", "challenge", "approach", "coherent_steps"}

// KernelFileNames maps file types to the markdown filenames users see.
var KernelFileNames = map[string]string{
	"summary":        "Summary.md",
	"challenge":      "Challenge.md",
	"approach":       "Approach.md",
	"coherent_steps": "CoherentSteps.md",
}

func IsKernelFileType(fileType string) bool {
	_, ok := KernelFileNames[fileType]
	return ok
}

type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID        string
	OrgID     string
	Email     string
	Name      string
	Role      string // 'member' | 'org_admin'
	Title     string
	CreatedAt time.Time
}

type Idea struct {
	ID               string
	OrgID            string
	CreatorID        string
	Title            string
	ObjectiveID      *string
	Status           string // 'draft' | 'active' | 'archived'
	KernelCompletion int    // 0-4
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type KernelFile struct {
	ID          string
	IdeaID      string
	FileType    string
	Content     string
	ContentHash string
	IsComplete  bool
	UpdatedAt   time.Time
	UpdatedBy   string
}

type Objective struct {
	ID          string
	OrgID       string
	Title       string
	Description string
	OwnerID     *string
	Timeframe   string
	Status      string // 'active' | 'completed' | 'archived'
	CreatedAt   time.Time
	CreatedBy   *string
}

type ObjectiveFile struct {
	ID          string
	ObjectiveID string
	Content     string
	UpdatedAt   time.Time
}

type ContextFile struct {
	ID             string
	IdeaID         string
	Filename       string
	Content        string
	SizeBytes      int
	CreatedByAgent bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Session is a persistent conversation thread with one agent, scoped to
// either an idea or an objective.
type Session struct {
	ID          string
	IdeaID      *string
	ObjectiveID *string
	UserID      string
	AgentType   string
	FileType    *string
	Title       *string
	CreatedAt   time.Time
	LastActive  time.Time
}

type SessionMessage struct {
	ID        string
	SessionID string
	Role      string // 'user' | 'agent'
	Content   string
	CreatedAt time.Time
}
