// Package jobs dispatches and consumes report generation jobs over RabbitMQ.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
)

const dateLayout = "2006-01-02"

// AllPrincipals as the job username runs the pipeline for every stored
// principal.
const AllPrincipals = "*"

// GenerateReportJob is the wire payload of a report generation job. Only
// Username is required; credentials and report options may be supplied to
// override what the principal store holds.
type GenerateReportJob struct {
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Target    string `json:"target,omitempty"`
	Title     string `json:"title,omitempty"`
}

func decodeJob(body []byte) (*GenerateReportJob, error) {
	var job GenerateReportJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	if job.Username == "" {
		return nil, errors.New("job payload missing username")
	}
	return &job, nil
}

// options converts the payload fields into draft build options. Empty fields
// keep their zero value so the aggregator applies its defaults.
func (j *GenerateReportJob) options() (aggregator.Options, error) {
	var opts aggregator.Options
	var err error

	if j.StartDate != "" {
		if opts.StartDate, err = time.Parse(dateLayout, j.StartDate); err != nil {
			return opts, fmt.Errorf("parse start_date %q: %w", j.StartDate, err)
		}
	}
	if j.EndDate != "" {
		if opts.EndDate, err = time.Parse(dateLayout, j.EndDate); err != nil {
			return opts, fmt.Errorf("parse end_date %q: %w", j.EndDate, err)
		}
	}
	if j.Target != "" {
		if opts.Target, err = decimal.NewFromString(j.Target); err != nil {
			return opts, fmt.Errorf("parse target %q: %w", j.Target, err)
		}
	}
	opts.Title = j.Title
	return opts, nil
}

// principal builds the principal for this job, preferring stored account
// details and falling back to payload overrides.
func (j *GenerateReportJob) principal(stored *aggregator.Principal) aggregator.Principal {
	p := aggregator.Principal{Username: j.Username}
	if stored != nil {
		p = *stored
	}
	if j.Password != "" {
		p.Password = j.Password
	}
	if j.Email != "" {
		p.Email = j.Email
	}
	if j.Name != "" {
		p.Name = j.Name
	}
	return p
}
