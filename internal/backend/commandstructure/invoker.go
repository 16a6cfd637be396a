package commandstructure

import (
	"fmt"
	"log/slog"
	"time"
)

// Pipeline applies a fixed sequence of commands to image data.
// Commands are created once so configuration errors surface at startup.
type Pipeline struct {
	commands []Command
}

// NewPipeline creates the configured commands from the registry in order
func NewPipeline(registry *CommandRegistry, configs []CommandConfig) (*Pipeline, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := registry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return &Pipeline{commands: commands}, nil
}

// NewPipelineFromCommands wraps already constructed commands
func NewPipelineFromCommands(commands ...Command) *Pipeline {
	return &Pipeline{commands: commands}
}

// Names returns the command names in execution order
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.commands))
	for _, command := range p.commands {
		names = append(names, command.Name())
	}
	return names
}

// Execute applies all commands in sequence to the image data
func (p *Pipeline) Execute(imageData []byte) ([]byte, error) {
	if len(p.commands) == 0 {
		return imageData, nil
	}

	start := time.Now()
	currentData := imageData

	for idx, command := range p.commands {
		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("image command failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}
		currentData = processedData
	}

	slog.Debug("image pipeline completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(p.commands),
		"input_size_bytes", len(imageData),
		"final_size_bytes", len(currentData))

	return currentData, nil
}
