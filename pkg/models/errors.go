package models

import "errors"

var (
	errAgentNil            = errors.New("models: agent is nil")
	errAgentIDRequired     = errors.New("models: agent_id is required")
	errSubAgentNeedsParent = errors.New("models: sub_agent requires parent_agent_id")
	errPheromoneRange      = errors.New("models: pheromone_score must be in [0,1]")
)
