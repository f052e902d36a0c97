package worker

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RunReport is the combined outcome of one worker cycle, broadcast to
// progress subscribers and returned from the cron endpoints.
type RunReport struct {
	Action     string           `json:"action"`
	RanAt      time.Time        `json:"ran_at"`
	Enrollment EnrollmentResult `json:"enrollment"`
	Execution  ExecutorResult   `json:"execution"`
	Dispatch   CycleSummary     `json:"dispatch"`
}

// AutomationWorker drives the engine on a schedule: enrollment and step
// execution once per day, dispatch every few minutes. The same cycles are
// reachable on demand through the cron endpoints.
type AutomationWorker struct {
	Enroller   *Enroller
	Executor   *StepExecutor
	Dispatcher *Dispatcher
	Logger     *log.Logger

	DispatchInterval time.Duration
	DailyRunHour     int

	// Notify, when set, receives every cycle report (used for the
	// progress websocket).
	Notify func(RunReport)

	lastDailyRun time.Time
}

func NewAutomationWorker(enroller *Enroller, executor *StepExecutor, dispatcher *Dispatcher, logger *log.Logger) *AutomationWorker {
	return &AutomationWorker{
		Enroller:   enroller,
		Executor:   executor,
		Dispatcher: dispatcher,
		Logger:     logger,

		DispatchInterval: 5 * time.Minute,
		DailyRunHour:     8,
	}
}

func (aw *AutomationWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	aw.Logger.Println("Automation worker started")

	ticker := time.NewTicker(aw.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			aw.Logger.Println("Automation worker shutting down...")
			return
		case <-ticker.C:
			now := time.Now()
			if aw.dailyDue(now) {
				aw.lastDailyRun = now
				aw.RunCycle("daily", now)
			} else {
				aw.RunCycle("send", now)
			}
		}
	}
}

// dailyDue reports whether the once-a-day cycle should run on this tick: we
// are past the configured hour and have not run yet this calendar day.
func (aw *AutomationWorker) dailyDue(now time.Time) bool {
	if now.Hour() < aw.DailyRunHour {
		return false
	}
	y1, m1, d1 := aw.lastDailyRun.Date()
	y2, m2, d2 := now.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// RunCycle runs one engine cycle. "daily" enrolls new accounts, advances
// workflows, and dispatches; "send" only advances and dispatches.
func (aw *AutomationWorker) RunCycle(action string, now time.Time) (RunReport, error) {
	report := RunReport{Action: action, RanAt: now}

	switch action {
	case "daily":
		report.Enrollment = aw.Enroller.Run(now)
		report.Execution = aw.Executor.ProcessDue(now)
		report.Dispatch = aw.Dispatcher.DispatchDue(now)
	case "send":
		report.Execution = aw.Executor.ProcessDue(now)
		report.Dispatch = aw.Dispatcher.DispatchDue(now)
	default:
		return report, fmt.Errorf("unknown action %q", action)
	}

	aw.Logger.Printf("✅ Cycle %s: enrolled=%d advanced=%d sent=%d failed=%d skipped=%d",
		action, report.Enrollment.Enrolled, report.Execution.Advanced,
		report.Dispatch.Sent, report.Dispatch.Failed, report.Dispatch.Skipped)

	if aw.Notify != nil {
		aw.Notify(report)
	}
	return report, nil
}
