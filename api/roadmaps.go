package api

import (
	"context"
	"fmt"
	"net/http"
)

// Roadmap node statuses.
const (
	NodeStatusLocked    = "locked"
	NodeStatusAvailable = "available"
	NodeStatusCompleted = "completed"
)

// RoadmapNode is one step on a learning roadmap.
type RoadmapNode struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	NodeOrder      int    `json:"nodeOrder"`
	NodeType       string `json:"nodeType,omitempty"`
	EstimatedHours int    `json:"estimatedHours,omitempty"`
	XPReward       int    `json:"xpReward,omitempty"`
	CompletedAt    string `json:"completedAt,omitempty"`
}

// Roadmap is a generated learning path.
type Roadmap struct {
	ID     int64         `json:"id"`
	Title  string        `json:"title"`
	Status string        `json:"status,omitempty"`
	Nodes  []RoadmapNode `json:"nodes,omitempty"`
}

func (c *Client) ListRoadmaps(ctx context.Context) ([]Roadmap, error) {
	var out listEnvelope[Roadmap]
	if err := c.Do(ctx, http.MethodGet, "/roadmaps/", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetRoadmap(ctx context.Context, id int64) (*Roadmap, error) {
	var out Roadmap
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/roadmaps/%d/", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateRoadmap asks the collaborator to build a personalised roadmap
// from the user's onboarding responses.
func (c *Client) GenerateRoadmap(ctx context.Context) (*Roadmap, error) {
	var out Roadmap
	if err := c.Do(ctx, http.MethodPost, "/roadmaps/generate/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRoadmapNode patches one node's status and returns the updated node.
func (c *Client) UpdateRoadmapNode(ctx context.Context, roadmapID, nodeID int64, status string) (*RoadmapNode, error) {
	var out RoadmapNode
	path := fmt.Sprintf("/roadmaps/%d/nodes/%d/", roadmapID, nodeID)
	if err := c.Do(ctx, http.MethodPatch, path, map[string]string{"status": status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
