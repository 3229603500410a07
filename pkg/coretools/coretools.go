// Package coretools holds the built-in tools offered to every chat agent.
package coretools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/groqchat/pkg/toolexecutor"
)

const (
	WeatherToolName        = "WeatherTool"
	WeatherToolDescription = "Returns weather information for a city"
)

// RegisterCoreTools registers the built-in tools on executor.
func RegisterCoreTools(executor *toolexecutor.ToolExecutor) error {
	if executor == nil {
		return errors.New("tool executor is required")
	}

	tools := []toolexecutor.ToolDefinition{
		weatherTool(),
	}

	for _, tool := range tools {
		if err := executor.RegisterTool(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

// Weather returns a fabricated report for city. It is a stand-in and never
// looks anything up: the output depends on city alone.
func Weather(city string) string {
	return "Fake weather report: It's always sunny in " + city + " 🌞."
}

func weatherTool() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        WeatherToolName,
		Description: WeatherToolDescription,
		Parameters: []toolexecutor.ToolParameter{
			{Name: "city", Type: "string", Description: "Name of the city", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			city := stringParam(params, "city")
			logger := toolexecutor.Logger(ctx)
			logger.Debug().Str("city", city).Msg("Weather report requested")
			return Weather(city), nil
		},
	}
}

func stringParam(params map[string]interface{}, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
