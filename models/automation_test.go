package models

import (
	"strings"
	"testing"
)

func welcomeWorkflow() []WorkflowNode {
	return []WorkflowNode{
		{ID: "trigger-1", Type: NodeTypeTrigger},
		{ID: "email-1", Type: NodeTypeSendEmail, Config: NodeConfig{Subject: "Welcome!", BodyHTML: "<p>Hi {{first_name}}</p>"}},
		{ID: "delay-1", Type: NodeTypeDelay, Config: NodeConfig{DelayDays: 3}},
		{ID: "cond-1", Type: NodeTypeCondition, Config: NodeConfig{ConditionType: "opened", TargetNodeID: "email-1"}, Branches: &NodeBranches{
			Yes: []WorkflowNode{
				{ID: "email-2", Type: NodeTypeSendEmail, Config: NodeConfig{Subject: "Review us", BodyHTML: "<p>{{review_link}}</p>"}},
			},
			No: []WorkflowNode{
				{ID: "delay-2", Type: NodeTypeDelay, Config: NodeConfig{DelayDays: 2}},
				{ID: "email-3", Type: NodeTypeSendEmail, Config: NodeConfig{Subject: "Still here", BodyText: "We're here if you need us."}},
			},
		}},
	}
}

func TestValidateNodesAcceptsWellFormedWorkflow(t *testing.T) {
	if err := ValidateNodes(welcomeWorkflow()); err != nil {
		t.Fatalf("valid workflow rejected: %v", err)
	}
}

func TestValidateNodesRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(nodes []WorkflowNode) []WorkflowNode
		wantErr string
	}{
		{
			"duplicate ids",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[2].ID = "email-1"
				return nodes
			},
			"duplicate id",
		},
		{
			"trigger not first",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[0], nodes[1] = nodes[1], nodes[0]
				return nodes
			},
			"trigger must be the first",
		},
		{
			"send without subject",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[1].Config.Subject = ""
				return nodes
			},
			"requires a subject",
		},
		{
			"delay without days",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[2].Config.DelayDays = 0
				return nodes
			},
			"delay_days",
		},
		{
			"condition without target",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[3].Config.TargetNodeID = ""
				return nodes
			},
			"target_node_id",
		},
		{
			"nested condition",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[3].Branches.Yes = append(nodes[3].Branches.Yes, WorkflowNode{
					ID: "cond-2", Type: NodeTypeCondition,
					Config:   NodeConfig{ConditionType: "opened", TargetNodeID: "email-2"},
					Branches: &NodeBranches{},
				})
				return nodes
			},
			"cannot nest",
		},
		{
			"unknown type",
			func(nodes []WorkflowNode) []WorkflowNode {
				nodes[1].Type = "teleport"
				return nodes
			},
			"unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodes(tt.mutate(welcomeWorkflow()))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestFindNodeReachesBranches(t *testing.T) {
	nodes := welcomeWorkflow()

	if n := FindNode(nodes, "email-3"); n == nil || n.Config.Subject != "Still here" {
		t.Fatalf("expected to find email-3 inside the no branch, got %+v", n)
	}
	if n := FindNode(nodes, "missing"); n != nil {
		t.Fatalf("expected nil for unknown id, got %+v", n)
	}
}

func TestNodeAfter(t *testing.T) {
	nodes := welcomeWorkflow()

	next := NodeAfter(nodes, "email-1")
	if next == nil || next.ID != "delay-1" {
		t.Fatalf("after email-1: got %+v, want delay-1", next)
	}
	if next := NodeAfter(nodes, "cond-1"); next != nil {
		t.Fatalf("last node should have no successor, got %+v", next)
	}
}

func TestSequenceForLocatesContainingSequence(t *testing.T) {
	automation := Automation{Nodes: welcomeWorkflow()}

	top := automation.SequenceFor("delay-1")
	if len(top) != 4 || top[0].ID != "trigger-1" {
		t.Fatalf("delay-1 should resolve to the top-level sequence")
	}

	no := automation.SequenceFor("email-3")
	if len(no) != 2 || no[0].ID != "delay-2" {
		t.Fatalf("email-3 should resolve to the no branch, got %d nodes", len(no))
	}

	// Walking the branch to its end via NodeAfter terminates
	if next := NodeAfter(no, "email-3"); next != nil {
		t.Fatalf("end of branch should be terminal, got %+v", next)
	}

	if seq := automation.SequenceFor("missing"); seq != nil {
		t.Fatalf("unknown id should resolve to nil")
	}
}

func TestBranchNodes(t *testing.T) {
	automation := Automation{Nodes: welcomeWorkflow()}

	if got := automation.BranchNodes("", ""); len(got) != 4 {
		t.Fatalf("empty branch means top-level sequence, got %d nodes", len(got))
	}
	yes := automation.BranchNodes(BranchYes, "cond-1")
	if len(yes) != 1 || yes[0].ID != "email-2" {
		t.Fatalf("yes branch: got %+v", yes)
	}
	no := automation.BranchNodes(BranchNo, "cond-1")
	if len(no) != 2 {
		t.Fatalf("no branch: got %d nodes, want 2", len(no))
	}
	if got := automation.BranchNodes(BranchYes, "email-1"); got != nil {
		t.Fatalf("non-condition node has no branches, got %+v", got)
	}
}

func TestFirstActionable(t *testing.T) {
	nodes := welcomeWorkflow()
	first := FirstActionable(nodes)
	if first == nil || first.ID != "email-1" {
		t.Fatalf("first actionable should skip the trigger, got %+v", first)
	}
	if FirstActionable([]WorkflowNode{{ID: "t", Type: NodeTypeTrigger}}) != nil {
		t.Fatalf("trigger-only workflow has no actionable node")
	}
}
