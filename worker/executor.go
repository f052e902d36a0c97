package worker

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
)

// StepExecutor walks due enrollments through their automation's workflow
// graph, one enrollment at a time. It is the only component that mutates an
// enrollment's position.
type StepExecutor struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewStepExecutor(db *gorm.DB, logger *log.Logger) *StepExecutor {
	return &StepExecutor{DB: db, Logger: logger}
}

// ExecutorResult summarizes one step-execution pass.
type ExecutorResult struct {
	Advanced  int      `json:"advanced"`
	Completed int      `json:"completed"`
	Exited    int      `json:"exited"`
	Scheduled int      `json:"scheduled"`
	Errors    []string `json:"errors,omitempty"`
}

// chainCap bounds how many instant nodes one enrollment may traverse in a
// single pass, guarding against pathological graphs.
const chainCap = 25

// ProcessDue advances every enrollment whose next action is at or before
// now. Each enrollment is processed independently.
func (ex *StepExecutor) ProcessDue(now time.Time) ExecutorResult {
	var result ExecutorResult

	var due []models.AutomationEnrollment
	err := ex.DB.Where("status = ? AND next_action_at IS NOT NULL AND next_action_at <= ?",
		models.EnrollmentStatusActive, now).
		Find(&due).Error
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("loading due enrollments: %v", err))
		return result
	}

	automations := make(map[uint]*models.Automation)
	for i := range due {
		enrollment := &due[i]
		automation, ok := automations[enrollment.AutomationID]
		if !ok {
			automation = &models.Automation{}
			if err := ex.DB.First(automation, enrollment.AutomationID).Error; err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("enrollment %d: loading automation: %v", enrollment.ID, err))
				continue
			}
			automations[enrollment.AutomationID] = automation
		}
		ex.advance(automation, enrollment, now, &result)
	}
	return result
}

// advance executes the enrollment's current node and any instant successors,
// stopping at a delay, a terminal state, or the chain cap.
func (ex *StepExecutor) advance(automation *models.Automation, enrollment *models.AutomationEnrollment, now time.Time, result *ExecutorResult) {
	if !automation.IsActive() {
		enrollment.Exit(models.ExitReasonAutomationPaused, now)
		ex.save(enrollment, result)
		result.Exited++
		return
	}

	for i := 0; i < chainCap; i++ {
		if enrollment.Status != models.EnrollmentStatusActive || !enrollment.Due(now) {
			break
		}
		if err := ex.step(automation, enrollment, now, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("enrollment %d: %v", enrollment.ID, err))
			break
		}
		result.Advanced++
	}
	ex.save(enrollment, result)
}

func (ex *StepExecutor) step(automation *models.Automation, enrollment *models.AutomationEnrollment, now time.Time, result *ExecutorResult) error {
	node := models.FindNode(automation.Nodes, enrollment.CurrentNodeID)
	if node == nil {
		return fmt.Errorf("node %s not found in automation %d", enrollment.CurrentNodeID, automation.ID)
	}

	switch node.Type {
	case models.NodeTypeTrigger:
		ex.moveToNext(automation, enrollment, node.ID, now, result)

	case models.NodeTypeSendEmail:
		scheduled := models.ScheduledEmail{
			AutomationID: automation.ID,
			EnrollmentID: enrollment.ID,
			AccountID:    enrollment.AccountID,
			NodeID:       node.ID,
			Subject:      node.Config.Subject,
			BodyHTML:     node.Config.BodyHTML,
			BodyText:     node.Config.BodyText,
			ScheduledFor: now,
			Status:       models.ScheduledStatusPending,
			MaxAttempts:  3,
		}
		if err := ex.DB.Create(&scheduled).Error; err != nil {
			return fmt.Errorf("materializing send for node %s: %w", node.ID, err)
		}
		result.Scheduled++
		// The send is pending; the workflow position moves on immediately.
		ex.moveToNext(automation, enrollment, node.ID, now, result)

	case models.NodeTypeDelay:
		wake := now.AddDate(0, 0, node.Config.DelayDays)
		ex.moveToNext(automation, enrollment, node.ID, now, result)
		if enrollment.Status == models.EnrollmentStatusActive {
			enrollment.NextActionAt = &wake
		}

	case models.NodeTypeCondition:
		branch := models.BranchNo
		opened, err := ex.targetOpened(enrollment, node.Config.TargetNodeID)
		if err != nil {
			return err
		}
		if opened {
			branch = models.BranchYes
		}
		nodes := automation.BranchNodes(branch, node.ID)
		if len(nodes) == 0 {
			enrollment.Complete(now)
			result.Completed++
			return nil
		}
		enrollment.CurrentBranch = branch
		enrollment.CurrentNodeID = nodes[0].ID
		enrollment.NextActionAt = &now

	default:
		return fmt.Errorf("node %s: unknown type %q", node.ID, node.Type)
	}
	return nil
}

// moveToNext advances the position pointer within the enrollment's current
// sequence; running off the end completes the enrollment.
func (ex *StepExecutor) moveToNext(automation *models.Automation, enrollment *models.AutomationEnrollment, nodeID string, now time.Time, result *ExecutorResult) {
	sequence := automation.SequenceFor(nodeID)
	next := models.NodeAfter(sequence, nodeID)
	if next == nil {
		enrollment.Complete(now)
		result.Completed++
		return
	}
	enrollment.CurrentNodeID = next.ID
	enrollment.NextActionAt = &now
}

// targetOpened answers a condition node's "was that email opened by now"
// question from the enrollment's own email log.
func (ex *StepExecutor) targetOpened(enrollment *models.AutomationEnrollment, targetNodeID string) (bool, error) {
	var emailLog models.EmailLog
	err := ex.DB.Where("enrollment_id = ? AND node_id = ?", enrollment.ID, targetNodeID).
		Order("created_at DESC").
		First(&emailLog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Nothing was sent for the target node, so it was not opened.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading email log for node %s: %w", targetNodeID, err)
	}
	return emailLog.Opened(), nil
}

func (ex *StepExecutor) save(enrollment *models.AutomationEnrollment, result *ExecutorResult) {
	if err := ex.DB.Save(enrollment).Error; err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("enrollment %d: saving state: %v", enrollment.ID, err))
	}
	if enrollment.Status == models.EnrollmentStatusCompleted {
		ex.DB.Model(&models.Automation{}).Where("id = ?", enrollment.AutomationID).
			Update("completed_count", gorm.Expr("completed_count + 1"))
	}
}
