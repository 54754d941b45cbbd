package redisqueue

import "encoding/json"

// Job is the payload carried on the stream: enough to let a worker
// fetch the submission and code blob without re-reading the intake
// request body.
type Job struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	ProblemID    string `json:"problem_id"`
	Language     string `json:"language"`
	BlobKey      string `json:"blob_key"`
	Priority     string `json:"priority"`
	Attempt      int    `json:"attempt"`
}

func (j Job) marshal() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJob(data string) (Job, error) {
	var j Job
	err := json.Unmarshal([]byte(data), &j)
	return j, err
}
