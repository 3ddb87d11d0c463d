package db

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Submission is one recorded dispatch attempt.
type Submission struct {
	ID             string    // Ledger entry ID
	JobName        string    // Descriptor job name
	Account        string    // Descriptor billing account
	Boundary       string    // Boundary the job was handed to (slurm, pbs, docker)
	Accepted       bool      // Whether the boundary accepted the job
	SchedulerJobID string    // Scheduler job id, when accepted
	FailureKind    string    // validation, rejection or launch, when not accepted
	FailureReason  string    // Failure reason, when not accepted
	SubmittedAt    time.Time // Time of the attempt
}

var db *sql.DB

// InitDatabase opens the SQLite ledger at path and creates the submissions table
func InitDatabase(path string) error {
	var err error
	db, err = sql.Open("sqlite3", path)
	if err != nil {
		return errors.Wrapf(err, "failed to open ledger %s", path)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		job_name TEXT,
		account TEXT,
		boundary TEXT,
		accepted INTEGER,
		scheduler_job_id TEXT,
		failure_kind TEXT,
		failure_reason TEXT,
		submitted_at TIMESTAMP
	)`)
	if err != nil {
		return errors.Wrap(err, "failed to create submissions table")
	}

	return nil
}

// AddSubmission records a dispatch attempt
func AddSubmission(s Submission) error {
	_, err := db.Exec("INSERT INTO submissions (id, job_name, account, boundary, accepted, scheduler_job_id, failure_kind, failure_reason, submitted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.JobName, s.Account, s.Boundary, s.Accepted, s.SchedulerJobID, s.FailureKind, s.FailureReason, s.SubmittedAt.UTC())
	return err
}

// LoadSubmissions loads all recorded attempts, oldest first
func LoadSubmissions() ([]Submission, error) {
	rows, err := db.Query("SELECT id, job_name, account, boundary, accepted, scheduler_job_id, failure_kind, failure_reason, submitted_at FROM submissions ORDER BY submitted_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []Submission
	for rows.Next() {
		var s Submission
		err := rows.Scan(&s.ID, &s.JobName, &s.Account, &s.Boundary, &s.Accepted, &s.SchedulerJobID, &s.FailureKind, &s.FailureReason, &s.SubmittedAt)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, s)
	}

	return submissions, rows.Err()
}

// CloseDatabase closes the SQLite ledger
func CloseDatabase() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}
