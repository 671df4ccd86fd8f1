package models

// Domain models matching the database schema in db/migrations/0001_init.sql

// Role distinguishes the two kinds of identities sharing one registry.
type Role string

const (
	RoleWorker     Role = "worker"
	RoleContractor Role = "contractor"
)

// Identity is a phone-number-keyed record for a worker or a contractor.
// The phone number is the primary key and never changes; rows are never
// hard-deleted, availability is toggled through AvailableFrom instead.
type Identity struct {
	Phone         string `json:"phone" db:"phone"`
	Role          Role   `json:"role" db:"role"`
	Name          string `json:"name,omitempty" db:"name"`
	City          string `json:"city,omitempty" db:"city"`
	Skill         string `json:"skill,omitempty" db:"skill"`
	Language      string `json:"language,omitempty" db:"language"`
	IDNumber      string `json:"id_number,omitempty" db:"id_number"`
	AvailableFrom *int64 `json:"available_from,omitempty" db:"available_from"`
	Onboarded     bool   `json:"onboarded" db:"onboarded"`
	Created       int64  `json:"created" db:"created"`
	Updated       int64  `json:"updated" db:"updated"`
}

// AvailableAt reports whether the worker is free at the given unix-milli
// instant. A nil or past AvailableFrom means available.
func (i *Identity) AvailableAt(now int64) bool {
	return i.AvailableFrom == nil || *i.AvailableFrom <= now
}

// ConversationState is the persisted pointer to where a phone number sits
// within a multi-step collection flow. At most one row per phone; while a row
// exists, the next inbound message from that phone is an answer to Step.
type ConversationState struct {
	Phone   string            `json:"phone" db:"phone"`
	Step    string            `json:"step" db:"step"`
	Role    Role              `json:"role" db:"role"`
	Context map[string]string `json:"context" db:"context_json"`
	Updated int64             `json:"updated" db:"updated"`
}

// JobStatus is the lifecycle state of a posting.
type JobStatus string

const (
	JobOpen      JobStatus = "open"
	JobFilled    JobStatus = "filled"
	JobCancelled JobStatus = "cancelled"
)

// Job is a contractor's posted labour request. Remaining is the only
// contended counter in the system; it is mutated exclusively inside the
// acceptance transaction.
type Job struct {
	ID              string    `json:"id" db:"id"`
	ContractorPhone string    `json:"contractor_phone" db:"contractor_phone"`
	Title           string    `json:"title" db:"title"`
	Skill           string    `json:"skill" db:"skill"`
	Wage            string    `json:"wage" db:"wage"`
	City            string    `json:"city" db:"city"`
	Location        string    `json:"location" db:"location"`
	WorkersNeeded   int       `json:"workers_needed" db:"workers_needed"`
	Remaining       int       `json:"remaining" db:"remaining"`
	StartDate       int64     `json:"start_date" db:"start_date"`
	EndDate         int64     `json:"end_date" db:"end_date"`
	Insurance       bool      `json:"insurance" db:"insurance"`
	Status          JobStatus `json:"status" db:"status"`
	Created         int64     `json:"created" db:"created"`
}

// Ref is the short human-typable prefix workers send back to accept a job.
func (j *Job) Ref() string {
	if len(j.ID) <= 8 {
		return j.ID
	}
	return j.ID[:8]
}

// ApplicationStatus tracks one worker's response to one job.
type ApplicationStatus string

const (
	AppPending             ApplicationStatus = "pending"
	AppWorkerAccepted      ApplicationStatus = "worker_accepted"
	AppContractorConfirmed ApplicationStatus = "contractor_confirmed"
	AppRejected            ApplicationStatus = "rejected"
	AppCancelled           ApplicationStatus = "cancelled"
	AppCompleted           ApplicationStatus = "completed"
)

// AttendanceStatus records the outcome of the on-site OTP exchange.
type AttendanceStatus string

const (
	AttendanceNotMarked AttendanceStatus = "not_marked"
	AttendancePresent   AttendanceStatus = "present"
)

// Application is the (job, worker) pair carrying the OTP protocol state.
// OTP fields are set only while status is worker_accepted; verification
// clears the code so a replay of the same digits fails.
type Application struct {
	JobID        string            `json:"job_id" db:"job_id"`
	WorkerPhone  string            `json:"worker_phone" db:"worker_phone"`
	Status       ApplicationStatus `json:"status" db:"status"`
	OTPCode      string            `json:"-" db:"otp_code"`
	OTPExpiresAt *int64            `json:"otp_expires_at,omitempty" db:"otp_expires_at"`
	Attendance   AttendanceStatus  `json:"attendance" db:"attendance"`
	AttendanceAt *int64            `json:"attendance_at,omitempty" db:"attendance_at"`
	CancelledBy  string            `json:"cancelled_by,omitempty" db:"cancelled_by"`
	Created      int64             `json:"created" db:"created"`
	Updated      int64             `json:"updated" db:"updated"`
}

// IntentSchema is a stored JSON schema used to validate LLM output.
type IntentSchema struct {
	ID         int64  `json:"id" db:"id"`
	Version    string `json:"version" db:"version"`
	SchemaJSON string `json:"schema_json" db:"schema_json"`
	Created    int64  `json:"created" db:"created"`
	Updated    int64  `json:"updated" db:"updated"`
}

// Stats is the aggregate view served by the admin API.
type Stats struct {
	Workers          int64                       `json:"workers"`
	Contractors      int64                       `json:"contractors"`
	JobsByStatus     map[JobStatus]int64         `json:"jobs_by_status"`
	AppsByStatus     map[ApplicationStatus]int64 `json:"applications_by_status"`
	AttendanceMarked int64                       `json:"attendance_marked"`
}
