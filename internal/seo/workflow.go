package seo

import "time"

// Agent node ids a workflow config can override.
const (
	NodeKeywordGenerator = "keyword-generator"
	NodeRankingAnalyzer  = "ranking-analyzer"
	NodeDeepDive         = "deep-dive-strategy"
	NodeContentWriter    = "content-writer"
	NodeImageCreative    = "image-creative"
)

// Nodes lists every overridable agent node.
var Nodes = []string{NodeKeywordGenerator, NodeRankingAnalyzer, NodeDeepDive, NodeContentWriter, NodeImageCreative}

// NodeOverride replaces the system instruction of one agent node.
type NodeOverride struct {
	NodeID string `json:"nodeId" yaml:"nodeId" validate:"required,oneof=keyword-generator ranking-analyzer deep-dive-strategy content-writer image-creative"`
	Prompt string `json:"prompt" yaml:"prompt" validate:"max=20000"`
}

// WorkflowConfig is a user-owned named set of prompt overrides.
type WorkflowConfig struct {
	ID        string         `json:"id" yaml:"id,omitempty"`
	UserID    string         `json:"userId" yaml:"-"`
	Name      string         `json:"name" yaml:"name" validate:"required,max=120"`
	Nodes     []NodeOverride `json:"nodes" yaml:"nodes" validate:"dive"`
	IsDefault bool           `json:"isDefault" yaml:"isDefault"`
	CreatedAt time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"-"`
}

// Override returns the prompt for node, or "" when the config has none.
// A nil config has no overrides.
func (w *WorkflowConfig) Override(node string) string {
	if w == nil {
		return ""
	}
	for _, n := range w.Nodes {
		if n.NodeID == node {
			return n.Prompt
		}
	}
	return ""
}
