package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/utils"
)

// Automation statuses; only active automations enroll new accounts.
const (
	AutomationStatusDraft    = "draft"
	AutomationStatusActive   = "active"
	AutomationStatusPaused   = "paused"
	AutomationStatusArchived = "archived"
)

// Workflow node types
const (
	NodeTypeTrigger   = "trigger"
	NodeTypeSendEmail = "send_email"
	NodeTypeDelay     = "delay"
	NodeTypeCondition = "condition"
)

// Branch names on a condition node
const (
	BranchYes = "yes"
	BranchNo  = "no"
)

// Automation represents a rule-triggered, multi-step email workflow
type Automation struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft';index" json:"status"`

	// Population filter and workflow graph, validated at save time
	Filter utils.FilterSpec `gorm:"type:jsonb;serializer:json" json:"filter"`
	Nodes  []WorkflowNode   `gorm:"type:jsonb;serializer:json" json:"nodes"`

	// Enrollment limiting policy
	MaxEnrollments         *int `json:"max_enrollments"` // nil = unlimited
	EnrollmentCooldownDays int  `gorm:"default:0" json:"enrollment_cooldown_days"`
	DistributeEvenly       bool `gorm:"default:false" json:"distribute_evenly"`

	// Protected defaults cannot be deleted while seeded
	IsDefault bool `gorm:"default:false" json:"is_default"`

	// Statistics (denormalized for performance)
	EnrolledCount    int `gorm:"default:0" json:"enrolled_count"`
	CompletedCount   int `gorm:"default:0" json:"completed_count"`
	SentCount        int `gorm:"default:0" json:"sent_count"`
	OpenCount        int `gorm:"default:0" json:"open_count"`
	ClickCount       int `gorm:"default:0" json:"click_count"`
	BounceCount      int `gorm:"default:0" json:"bounce_count"`
	UnsubscribeCount int `gorm:"default:0" json:"unsubscribe_count"`

	LastRunAt *time.Time `json:"last_run_at"`

	// Relations
	Enrollments []AutomationEnrollment `gorm:"foreignKey:AutomationID" json:"enrollments,omitempty"`
}

// WorkflowNode is one step in the automation's workflow graph. Nodes form an
// ordered sequence; condition nodes carry nested yes/no sub-sequences.
type WorkflowNode struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"` // trigger, send_email, delay, condition
	Title    string        `json:"title"`
	Config   NodeConfig    `json:"config"`
	Branches *NodeBranches `json:"branches,omitempty"`
}

// NodeConfig contains node-specific settings
type NodeConfig struct {
	// send_email fields
	Subject  string `json:"subject,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`
	BodyText string `json:"body_text,omitempty"`

	// delay fields
	DelayDays int `json:"delay_days,omitempty"`

	// condition fields
	ConditionType string `json:"condition_type,omitempty"` // opened
	TargetNodeID  string `json:"target_node_id,omitempty"`
}

// NodeBranches holds the nested sub-sequences of a condition node
type NodeBranches struct {
	Yes []WorkflowNode `json:"yes"`
	No  []WorkflowNode `json:"no"`
}

// IsActive reports whether the automation enrolls new accounts.
func (a *Automation) IsActive() bool {
	return a.Status == AutomationStatusActive
}

// BranchNodes returns the node sequence the enrollment is currently walking:
// the top-level sequence when branch is empty, otherwise the named branch of
// the condition node the enrollment descended through.
func (a *Automation) BranchNodes(branch, conditionNodeID string) []WorkflowNode {
	if branch == "" {
		return a.Nodes
	}
	node := FindNode(a.Nodes, conditionNodeID)
	if node == nil || node.Branches == nil {
		return nil
	}
	if branch == BranchYes {
		return node.Branches.Yes
	}
	return node.Branches.No
}

// FindNode locates a node by id anywhere in the graph, including inside
// condition branches.
func FindNode(nodes []WorkflowNode, id string) *WorkflowNode {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
		if nodes[i].Branches != nil {
			if n := FindNode(nodes[i].Branches.Yes, id); n != nil {
				return n
			}
			if n := FindNode(nodes[i].Branches.No, id); n != nil {
				return n
			}
		}
	}
	return nil
}

// NodeAfter returns the node following id within the given sequence, or nil
// when id is the last node (terminal).
func NodeAfter(nodes []WorkflowNode, id string) *WorkflowNode {
	for i := range nodes {
		if nodes[i].ID == id {
			if i+1 < len(nodes) {
				return &nodes[i+1]
			}
			return nil
		}
	}
	return nil
}

// FirstActionable returns the first non-trigger node of a sequence.
func FirstActionable(nodes []WorkflowNode) *WorkflowNode {
	for i := range nodes {
		if nodes[i].Type != NodeTypeTrigger {
			return &nodes[i]
		}
	}
	return nil
}

// SequenceFor returns the node sequence that directly contains nodeID: the
// top-level sequence or one of a condition node's branches. Branches nest one
// level deep (enforced at save time), so a linear scan suffices.
func (a *Automation) SequenceFor(nodeID string) []WorkflowNode {
	for i := range a.Nodes {
		if a.Nodes[i].ID == nodeID {
			return a.Nodes
		}
	}
	for i := range a.Nodes {
		b := a.Nodes[i].Branches
		if b == nil {
			continue
		}
		for j := range b.Yes {
			if b.Yes[j].ID == nodeID {
				return b.Yes
			}
		}
		for j := range b.No {
			if b.No[j].ID == nodeID {
				return b.No
			}
		}
	}
	return nil
}

// ValidateNodes checks the workflow graph once at save time so the executor
// never has to handle malformed documents. Condition branches may not nest
// further conditions; a branch is a flat sub-sequence.
func ValidateNodes(nodes []WorkflowNode) error {
	seen := make(map[string]bool)
	return validateSequence(nodes, seen, true)
}

func validateSequence(nodes []WorkflowNode, seen map[string]bool, topLevel bool) error {
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			return fmt.Errorf("node %d: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("node %s: duplicate id", n.ID)
		}
		seen[n.ID] = true

		switch n.Type {
		case NodeTypeTrigger:
			if !topLevel || i != 0 {
				return fmt.Errorf("node %s: trigger must be the first top-level node", n.ID)
			}
		case NodeTypeSendEmail:
			if n.Config.Subject == "" {
				return fmt.Errorf("node %s: send_email requires a subject", n.ID)
			}
			if n.Config.BodyHTML == "" && n.Config.BodyText == "" {
				return fmt.Errorf("node %s: send_email requires a body", n.ID)
			}
		case NodeTypeDelay:
			if n.Config.DelayDays <= 0 {
				return fmt.Errorf("node %s: delay requires delay_days > 0", n.ID)
			}
		case NodeTypeCondition:
			if !topLevel {
				return fmt.Errorf("node %s: conditions cannot nest inside branches", n.ID)
			}
			if n.Config.ConditionType != "opened" {
				return fmt.Errorf("node %s: unsupported condition_type %q", n.ID, n.Config.ConditionType)
			}
			if n.Config.TargetNodeID == "" {
				return fmt.Errorf("node %s: condition requires target_node_id", n.ID)
			}
			if n.Branches == nil {
				return fmt.Errorf("node %s: condition requires branches", n.ID)
			}
			if err := validateSequence(n.Branches.Yes, seen, false); err != nil {
				return err
			}
			if err := validateSequence(n.Branches.No, seen, false); err != nil {
				return err
			}
		default:
			return fmt.Errorf("node %s: unknown type %q", n.ID, n.Type)
		}
	}
	return nil
}

// PreventProtectedDelete rejects deletion of seeded default automations. The
// repository layer calls this explicitly before any delete.
func PreventProtectedDelete(db *gorm.DB, automationID uint) error {
	var automation Automation
	if err := db.First(&automation, automationID).Error; err != nil {
		return err
	}
	if automation.IsDefault {
		return fmt.Errorf("automation %d is a protected default and cannot be deleted", automationID)
	}
	return nil
}
