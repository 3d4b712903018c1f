package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/group"
	"github.com/trezcool/kazi/core/submission"
)

const jobTimeout = 5 * time.Minute

type (
	MilestoneSource interface {
		DueMilestones(ctx context.Context, filter submission.MilestoneFilter) ([]submission.GroupMilestone, error)
	}

	GroupSource interface {
		Get(ctx context.Context, groupID string) (group.Detail, error)
	}

	Notifier interface {
		MilestoneDue(ctx context.Context, gm submission.GroupMilestone, g group.Group, members []group.Member)
	}
)

// Scheduler periodically reminds groups of their incomplete milestones due within a window.
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	window     time.Duration
	milestones MilestoneSource
	groups     GroupSource
	notifier   Notifier
	logger     core.Logger
}

func NewScheduler(conf core.RemindersConfig, milestones MilestoneSource, groups GroupSource, notifier Notifier, logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		schedule:   conf.Schedule,
		window:     conf.Window,
		milestones: milestones,
		groups:     groups,
		notifier:   notifier,
		logger:     logger,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("sending milestone reminders", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "scheduling reminders %q", s.schedule)
	}
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("milestone reminders scheduled: %q", s.schedule))
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sends the reminders due now and returns how many milestones were reminded.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := core.Now()
	until := now.Add(s.window)
	incomplete := false

	gms, err := s.milestones.DueMilestones(ctx, submission.MilestoneFilter{
		DueFrom:     &now,
		DueTo:       &until,
		IsCompleted: &incomplete,
	})
	if err != nil {
		return 0, err
	}

	var reminded int
	for _, gm := range gms {
		d, err := s.groups.Get(ctx, gm.GroupID)
		if err != nil {
			if !core.IsGone(err) && !core.IsNotFound(err) {
				s.logger.Warn("loading group for reminder", errors.Wrap(err, gm.GroupID))
			}
			continue
		}
		s.notifier.MilestoneDue(ctx, gm, d.Group, d.Members)
		reminded++
	}
	return reminded, nil
}
