package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	domainConfig "github.com/Dev-Marygold/Laffey/pkg/domain/model/config"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Agent holds the persona and memory pipeline settings
type Agent struct {
	name                  string
	developerID           string
	creatorName           string
	privateChannelID      string
	segmentGap            time.Duration
	consolidationInterval time.Duration
	workingMemorySize     int
	personaLocation       string
	identityPath          string
	adminToken            string
}

func (x *Agent) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "agent-name",
			Usage:       "Name of the agent in prompts",
			Category:    "Agent",
			Value:       domainConfig.DefaultAgentName,
			Sources:     cli.EnvVars("LAFFEY_AGENT_NAME"),
			Destination: &x.name,
		},
		&cli.StringFlag{
			Name:        "developer-id",
			Usage:       "Slack user ID of the creator",
			Category:    "Agent",
			Sources:     cli.EnvVars("LAFFEY_DEVELOPER_ID"),
			Destination: &x.developerID,
		},
		&cli.StringFlag{
			Name:        "creator-name",
			Usage:       "Display name of the creator",
			Category:    "Agent",
			Sources:     cli.EnvVars("LAFFEY_CREATOR_NAME"),
			Destination: &x.creatorName,
		},
		&cli.StringFlag{
			Name:        "private-channel-id",
			Usage:       "Slack channel ID of the private conversation with the creator",
			Category:    "Agent",
			Sources:     cli.EnvVars("LAFFEY_PRIVATE_CHANNEL_ID"),
			Destination: &x.privateChannelID,
		},
		&cli.DurationFlag{
			Name:        "segment-gap",
			Usage:       "Silence that separates two conversations during consolidation",
			Category:    "Agent",
			Value:       domainConfig.DefaultSegmentGap,
			Sources:     cli.EnvVars("LAFFEY_SEGMENT_GAP"),
			Destination: &x.segmentGap,
		},
		&cli.DurationFlag{
			Name:        "consolidation-interval",
			Usage:       "Interval of background consolidation (0 to disable)",
			Category:    "Agent",
			Value:       time.Hour,
			Sources:     cli.EnvVars("LAFFEY_CONSOLIDATION_INTERVAL"),
			Destination: &x.consolidationInterval,
		},
		&cli.IntFlag{
			Name:        "working-memory-size",
			Usage:       "Number of recent messages kept per channel",
			Category:    "Agent",
			Value:       20,
			Sources:     cli.EnvVars("LAFFEY_WORKING_MEMORY_SIZE"),
			Destination: &x.workingMemorySize,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "Persona text location (local path or gs://bucket/object). Built-in persona when empty",
			Category:    "Agent",
			Sources:     cli.EnvVars("LAFFEY_PERSONA"),
			Destination: &x.personaLocation,
		},
		&cli.StringFlag{
			Name:        "identity",
			Usage:       "TOML file of the core identity used when none is stored",
			Category:    "Agent",
			Sources:     cli.EnvVars("LAFFEY_IDENTITY"),
			Destination: &x.identityPath,
		},
		&cli.StringFlag{
			Name:        "admin-token",
			Usage:       "Bearer token of the admin API. The admin API is disabled when empty",
			Category:    "Agent",
			Sources:     cli.EnvVars("LAFFEY_ADMIN_TOKEN"),
			Destination: &x.adminToken,
		},
	}
}

func (x Agent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", x.name),
		slog.String("developer_id", x.developerID),
		slog.String("creator_name", x.creatorName),
		slog.String("private_channel_id", x.privateChannelID),
		slog.Duration("segment_gap", x.segmentGap),
		slog.Duration("consolidation_interval", x.consolidationInterval),
		slog.Int("working_memory_size", x.workingMemorySize),
		slog.String("persona", x.personaLocation),
		slog.String("identity", x.identityPath),
		slog.Bool("admin_enabled", x.adminToken != ""),
	)
}

// Validate checks the settings the agent cannot run without
func (x *Agent) Validate() error {
	if x.developerID == "" {
		return goerr.Wrap(ErrMissingRequired, "--developer-id is required", goerr.V(FlagKey, "developer-id"))
	}
	if x.creatorName == "" {
		return goerr.Wrap(ErrMissingRequired, "--creator-name is required", goerr.V(FlagKey, "creator-name"))
	}
	if x.workingMemorySize < 1 {
		return goerr.Wrap(ErrInvalidConfig, "--working-memory-size must be positive",
			goerr.V(FlagKey, "working-memory-size"),
			goerr.V("value", x.workingMemorySize))
	}
	if x.consolidationInterval < 0 {
		return goerr.Wrap(ErrInvalidConfig, "--consolidation-interval must not be negative",
			goerr.V(FlagKey, "consolidation-interval"))
	}
	return nil
}

// AgentConfig returns the memory pipeline tunables. Unset values fall back
// to the defaults.
func (x *Agent) AgentConfig() domainConfig.AgentConfig {
	return domainConfig.AgentConfig{
		AgentName:        x.name,
		DeveloperID:      x.developerID,
		PrivateChannelID: x.privateChannelID,
		SegmentGap:       x.segmentGap,
	}.WithDefaults()
}

func (x *Agent) CreatorName() string                  { return x.creatorName }
func (x *Agent) ConsolidationInterval() time.Duration { return x.consolidationInterval }
func (x *Agent) WorkingMemorySize() int               { return x.workingMemorySize }
func (x *Agent) PersonaLocation() string              { return x.personaLocation }
func (x *Agent) AdminToken() string                   { return x.adminToken }

// IdentitySeed loads the identity file. It returns nil when no file is set.
func (x *Agent) IdentitySeed() (*model.CoreIdentity, error) {
	if x.identityPath == "" {
		return nil, nil
	}
	return LoadIdentity(x.identityPath)
}

// LoadIdentity reads a core identity from a TOML file. Name and creator are
// required; a missing creation date is set to now.
func LoadIdentity(path string) (*model.CoreIdentity, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read identity file", goerr.V(ConfigPathKey, path))
	}

	var identity model.CoreIdentity
	if err := toml.Unmarshal(data, &identity); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse identity TOML",
			goerr.V(ConfigPathKey, path),
			goerr.V("error", err.Error()))
	}

	if err := identity.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "identity validation failed",
			goerr.V(ConfigPathKey, path),
			goerr.V("error", err.Error()))
	}

	if identity.CreationDate.IsZero() {
		identity.CreationDate = time.Now().UTC()
	}
	return &identity, nil
}
