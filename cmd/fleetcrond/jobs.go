package main

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"fleetcron/internal/config"
	"fleetcron/internal/sched"
	"fleetcron/internal/schedule"
	"fleetcron/pkg/logx"
)

// maxResultBytes caps how much command output lands in the run ledger.
const maxResultBytes = 4096

func registerJobs(s *sched.Scheduler, jobs []config.JobConfig, log logx.Logger) error {
	for _, jc := range jobs {
		def, err := commandJob(jc)
		if err != nil {
			return fmt.Errorf("job %q: %w", jc.Name, err)
		}
		if err := s.Add(def); err != nil {
			return err
		}
		log.Info("command job registered",
			logx.String("job", jc.Name), logx.String("schedule", jc.Schedule))
	}
	return nil
}

func commandJob(jc config.JobConfig) (sched.JobDefinition, error) {
	timeout, err := config.ParseDurationField("timeout", jc.Timeout)
	if err != nil {
		return sched.JobDefinition{}, err
	}
	spec := jc.Schedule
	command := jc.Command

	return sched.JobDefinition{
		Name: jc.Name,
		Schedule: func(b *schedule.Builder) (schedule.Source, error) {
			return b.Parse(spec)
		},
		Run: func(ctx context.Context, intended time.Time, name string) (any, error) {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			cmd.Env = append(cmd.Environ(),
				"FLEETCRON_JOB="+name,
				"FLEETCRON_INTENDED="+intended.Format(time.RFC3339),
			)
			out, err := cmd.CombinedOutput()
			if err != nil {
				return nil, fmt.Errorf("%w: %s", err, tail(out))
			}
			return tail(out), nil
		},
		Transient: jc.Transient,
	}, nil
}

// tail keeps the end of the output, which is where failures explain themselves.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= maxResultBytes {
		return s
	}
	return "..." + s[len(s)-maxResultBytes:]
}
