package config

import "time"

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, signingSecret string) *Slack {
	return &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
	}
}

// NewAgentForTest creates an Agent config for testing purposes
func NewAgentForTest(developerID, creatorName string, wmSize int, interval time.Duration) *Agent {
	return &Agent{
		developerID:           developerID,
		creatorName:           creatorName,
		workingMemorySize:     wmSize,
		consolidationInterval: interval,
	}
}

func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

func NewLLMForTest(provider string, utilityRPS float64) *LLM {
	return &LLM{provider: provider, utilityRPS: utilityRPS}
}

func NewRepositoryForTest(backend, sqlitePath, projectID string) *Repository {
	return &Repository{backend: backend, sqlitePath: sqlitePath, projectID: projectID}
}

func NewVectorForTest(backend, chromemPath string) *Vector {
	return &Vector{backend: backend, chromemPath: chromemPath, boost: 2.0}
}
