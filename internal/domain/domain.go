package domain

// TaskStatus values mirror the server enum.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
)

// TaskPriority values mirror the server enum.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// Task is the server's authoritative task representation. The *Name fields
// are denormalized projections owned by the server; the client never
// recomputes them, they only change when the whole entity is replaced.
type Task struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Description    *string      `json:"description,omitempty"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	ProjectID      int64        `json:"projectId"`
	ProjectName    string       `json:"projectName"`
	AssigneeID     *int64       `json:"assigneeId,omitempty"`
	AssigneeName   *string      `json:"assigneeName,omitempty"`
	ReporterID     int64        `json:"reporterId"`
	ReporterName   string       `json:"reporterName"`
	CategoryID     *int64       `json:"categoryId,omitempty"`
	CategoryName   *string      `json:"categoryName,omitempty"`
	DueDate        *string      `json:"dueDate,omitempty"`
	EstimatedHours *float64     `json:"estimatedHours,omitempty"`
	ActualHours    *float64     `json:"actualHours,omitempty"`
	CreatedAt      string       `json:"createdAt"`
	UpdatedAt      string       `json:"updatedAt"`
	CompletedAt    *string      `json:"completedAt,omitempty"`
}

type CreateTaskData struct {
	Title          string       `json:"title"`
	Description    *string      `json:"description,omitempty"`
	Status         TaskStatus   `json:"status,omitempty"`
	Priority       TaskPriority `json:"priority,omitempty"`
	ProjectID      int64        `json:"projectId"`
	AssigneeID     *int64       `json:"assigneeId,omitempty"`
	CategoryID     *int64       `json:"categoryId,omitempty"`
	DueDate        *string      `json:"dueDate,omitempty"`
	EstimatedHours *float64     `json:"estimatedHours,omitempty"`
}

// UpdateTaskData carries a general update; nil fields are omitted from the
// wire body, never sent as null.
type UpdateTaskData struct {
	Title          *string       `json:"title,omitempty"`
	Description    *string       `json:"description,omitempty"`
	Status         *TaskStatus   `json:"status,omitempty"`
	Priority       *TaskPriority `json:"priority,omitempty"`
	AssigneeID     *int64        `json:"assigneeId,omitempty"`
	DueDate        *string       `json:"dueDate,omitempty"`
	EstimatedHours *float64      `json:"estimatedHours,omitempty"`
	ActualHours    *float64      `json:"actualHours,omitempty"`
}

// TaskFilters are combined with AND semantics server-side. Zero values mean
// "not set" and are omitted from requests entirely.
type TaskFilters struct {
	Status     TaskStatus
	Priority   TaskPriority
	AssigneeID *int64
	ProjectID  *int64
	Search     string
}

// TaskFilterPatch merges into TaskFilters key by key. A nil field leaves the
// current value alone; a pointer to the zero value clears it.
type TaskFilterPatch struct {
	Status     *TaskStatus
	Priority   *TaskPriority
	AssigneeID **int64
	ProjectID  **int64
	Search     *string
}

// Apply merges the patch into f.
func (p TaskFilterPatch) Apply(f *TaskFilters) {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.AssigneeID != nil {
		f.AssigneeID = *p.AssigneeID
	}
	if p.ProjectID != nil {
		f.ProjectID = *p.ProjectID
	}
	if p.Search != nil {
		f.Search = *p.Search
	}
}

// TasksPage is the paginated list envelope returned by the task listing.
type TasksPage struct {
	Content       []Task `json:"content"`
	TotalElements int64  `json:"totalElements"`
	TotalPages    int    `json:"totalPages"`
	Size          int    `json:"size"`
	Number        int    `json:"number"`
}

// Pagination is the client-side snapshot of the most recently completed
// page fetch. It is only valid until filters change.
type Pagination struct {
	CurrentPage   int
	TotalPages    int
	TotalElements int64
	Size          int
}

type Project struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	OwnerID     int64   `json:"ownerId"`
	OwnerName   string  `json:"ownerName"`
	Active      bool    `json:"active"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

type CreateProjectData struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type UpdateProjectData struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type User struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Role      string  `json:"role"`
	Enabled   bool    `json:"enabled"`
	CreatedAt string  `json:"createdAt"`
}

type LoginCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterData struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// TaskAction is the mutation kind carried by a push event.
type TaskAction string

const (
	ActionCreate TaskAction = "CREATE"
	ActionUpdate TaskAction = "UPDATE"
	ActionDelete TaskAction = "DELETE"
)

// TaskEvent is a server-pushed entity mutation. CREATE and UPDATE carry the
// full task; DELETE carries only the id.
type TaskEvent struct {
	Action TaskAction `json:"action"`
	Task   *Task      `json:"task,omitempty"`
	TaskID int64      `json:"taskId,omitempty"`
}
